package status

import (
	"fmt"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// TransitionToAttaching starts an attach. A set already Attaching was left
// behind by an interrupted run and may be retried.
func TransitionToAttaching(ds *v1alpha1.DeviceSet, domain string) error {
	if ds.GetPhase() == v1alpha1.DeviceSetPhaseAttached && ds.Status.Domain != "" && ds.Status.Domain != domain {
		return fmt.Errorf("device set is attached to %s", ds.Status.Domain)
	}

	ds.SetPhase(v1alpha1.DeviceSetPhaseAttaching)
	ds.Status.Domain = domain
	SetCondition(ds, v1alpha1.ConditionReady, v1alpha1.ConditionFalse, "Attaching", "device hotplug in progress")
	return nil
}

// TransitionToDetached records that the devices left the domain.
func TransitionToDetached(ds *v1alpha1.DeviceSet) error {
	phase := ds.GetPhase()
	if phase != v1alpha1.DeviceSetPhaseAttached && phase != v1alpha1.DeviceSetPhaseFailed {
		return fmt.Errorf("cannot transition to Detached from phase %s", phase)
	}

	ds.SetPhase(v1alpha1.DeviceSetPhaseDetached)
	SetCondition(ds, v1alpha1.ConditionReady, v1alpha1.ConditionFalse, "Detached", "devices were unplugged")
	RemoveCondition(ds, v1alpha1.ConditionHostResourcesReady)
	return nil
}

// IsTerminal reports whether no further transition happens on its own.
func IsTerminal(phase v1alpha1.DeviceSetPhase) bool {
	return phase == v1alpha1.DeviceSetPhaseAttached ||
		phase == v1alpha1.DeviceSetPhaseDetached ||
		phase == v1alpha1.DeviceSetPhaseFailed
}
