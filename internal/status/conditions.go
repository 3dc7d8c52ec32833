// Package status maintains the status block of a DeviceSet: the phase and
// the conditions recorded while devices are attached to a domain.
package status

import (
	"fmt"
	"time"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// SetCondition adds or updates a condition. LastTransitionTime only moves
// when the status value changes.
func SetCondition(ds *v1alpha1.DeviceSet, condType string, status v1alpha1.ConditionStatus, reason, message string) {
	now := v1alpha1.Time{Time: time.Now()}

	for i := range ds.Status.Conditions {
		existing := &ds.Status.Conditions[i]
		if existing.Type != condType {
			continue
		}
		if existing.Status != status {
			existing.LastTransitionTime = now
		}
		existing.Status = status
		existing.Reason = reason
		existing.Message = message
		existing.ObservedGeneration = ds.Generation
		return
	}

	ds.Status.Conditions = append(ds.Status.Conditions, v1alpha1.Condition{
		Type:               condType,
		Status:             status,
		ObservedGeneration: ds.Generation,
		LastTransitionTime: now,
		Reason:             reason,
		Message:            message,
	})
}

// GetCondition returns a condition by type, or nil if not found.
func GetCondition(ds *v1alpha1.DeviceSet, condType string) *v1alpha1.Condition {
	for i := range ds.Status.Conditions {
		if ds.Status.Conditions[i].Type == condType {
			return &ds.Status.Conditions[i]
		}
	}
	return nil
}

// IsConditionTrue returns true if the condition exists and has status True.
func IsConditionTrue(ds *v1alpha1.DeviceSet, condType string) bool {
	cond := GetCondition(ds, condType)
	return cond != nil && cond.Status == v1alpha1.ConditionTrue
}

// RemoveCondition removes a condition by type.
func RemoveCondition(ds *v1alpha1.DeviceSet, condType string) {
	filtered := make([]v1alpha1.Condition, 0, len(ds.Status.Conditions))
	for _, c := range ds.Status.Conditions {
		if c.Type != condType {
			filtered = append(filtered, c)
		}
	}
	ds.Status.Conditions = filtered
}

// MarkAttached records that count devices were hotplugged into domain and
// moves the set to Attached.
func MarkAttached(ds *v1alpha1.DeviceSet, domain string, count int) {
	msg := fmt.Sprintf("%d device(s) attached to %s", count, domain)
	ds.Status.Domain = domain
	SetCondition(ds, v1alpha1.ConditionHostResourcesReady, v1alpha1.ConditionTrue, "SetupComplete", "host resources acquired")
	SetCondition(ds, v1alpha1.ConditionReady, v1alpha1.ConditionTrue, "Attached", msg)
	ds.SetPhase(v1alpha1.DeviceSetPhaseAttached)
	ds.UpdateObservedGeneration()
}

// MarkAttachFailed records a failed hotplug of the device at index i.
func MarkAttachFailed(ds *v1alpha1.DeviceSet, i int, err error) {
	msg := fmt.Sprintf("spec.devices[%d]: %v", i, err)
	SetCondition(ds, v1alpha1.ConditionReady, v1alpha1.ConditionFalse, "AttachFailed", msg)
	ds.SetPhase(v1alpha1.DeviceSetPhaseFailed)
}

// MarkIdentified records how many devices got their identity from the
// live domain. Identified is True only when every device has an alias.
func MarkIdentified(ds *v1alpha1.DeviceSet, assigned int) {
	missing := 0
	for _, d := range ds.Spec.Devices {
		if d.Alias == "" {
			missing++
		}
	}
	if missing > 0 {
		SetCondition(ds, v1alpha1.ConditionIdentified, v1alpha1.ConditionFalse, "AliasMissing",
			fmt.Sprintf("%d device(s) not found in the domain", missing))
		return
	}
	SetCondition(ds, v1alpha1.ConditionIdentified, v1alpha1.ConditionTrue, "AliasAssigned",
		fmt.Sprintf("%d device(s) identified", assigned))
}
