// Package device models the attachable devices of a virtual machine and
// converts them to and from libvirt domain device XML.
//
// Every variant (console, controller, interface, graphics, lease, ...)
// implements Device. A device is built either from a markup fragment
// (Parse, used on VM recovery and hotplug) or from a DeviceSpec (New, used
// on VM creation). The owning VM manager calls Setup before the device is
// attached to a running domain and Teardown after it is detached; XML can be
// called at any time to re-serialize the model.
//
// Side effects (virtual switch lookups, display networks, console sockets,
// the host RNG) go through the collaborators carried by Env, so codecs can be
// exercised in tests without a hypervisor.
package device
