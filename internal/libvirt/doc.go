// Package libvirt applies device XML to domains on a running libvirt
// daemon over github.com/digitalocean/go-libvirt.
//
// A Client owns the connection. Hotplug attaches, detaches and updates
// devices on a named domain and keeps the device's Setup and Teardown
// hooks in step with the daemon. Networks defines the bridged networks
// graphics devices listen on. GenerateDomainXML wraps rendered fragments
// in a minimal domain so they can be inspected or defined by hand.
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	hp := client.Hotplug(env, log)
//	err = hp.Attach(ctx, "vm1", nic, true)
//
// Every type here talks to the daemon through a narrow unexported
// interface, so tests substitute fakes for *libvirt.Libvirt.
package libvirt
