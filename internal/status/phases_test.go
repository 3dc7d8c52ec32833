package status

import (
	"testing"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

func TestTransitionToAttaching(t *testing.T) {
	tests := []struct {
		name      string
		phase     v1alpha1.DeviceSetPhase
		domain    string
		wantError bool
	}{
		{
			name:  "from Pending",
			phase: v1alpha1.DeviceSetPhasePending,
		},
		{
			name:  "retry after failure",
			phase: v1alpha1.DeviceSetPhaseFailed,
		},
		{
			name:  "retry interrupted attach",
			phase: v1alpha1.DeviceSetPhaseAttaching,
		},
		{
			name:  "reattach to the same domain",
			phase: v1alpha1.DeviceSetPhaseAttached,
		},
		{
			name:      "attached to another domain",
			phase:     v1alpha1.DeviceSetPhaseAttached,
			domain:    "other-vm",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := v1alpha1.NewDeviceSet("test-vm")
			ds.SetPhase(tt.phase)
			ds.Status.Domain = tt.domain

			err := TransitionToAttaching(ds, "test-vm")

			if tt.wantError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if ds.GetPhase() != tt.phase {
					t.Errorf("Phase should not change on error, got %s", ds.GetPhase())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ds.GetPhase() != v1alpha1.DeviceSetPhaseAttaching {
				t.Errorf("Expected phase Attaching, got %s", ds.GetPhase())
			}
			if ds.Status.Domain != "test-vm" {
				t.Errorf("Expected domain test-vm, got %s", ds.Status.Domain)
			}
			cond := GetCondition(ds, v1alpha1.ConditionReady)
			if cond == nil || cond.Status != v1alpha1.ConditionFalse {
				t.Errorf("Expected Ready=False, got %+v", cond)
			}
		})
	}
}

func TestTransitionToDetached(t *testing.T) {
	tests := []struct {
		name      string
		phase     v1alpha1.DeviceSetPhase
		wantError bool
	}{
		{name: "from Attached", phase: v1alpha1.DeviceSetPhaseAttached},
		{name: "from Failed", phase: v1alpha1.DeviceSetPhaseFailed},
		{name: "from Pending", phase: v1alpha1.DeviceSetPhasePending, wantError: true},
		{name: "from Detached", phase: v1alpha1.DeviceSetPhaseDetached, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := v1alpha1.NewDeviceSet("test-vm")
			ds.SetPhase(tt.phase)
			SetCondition(ds, v1alpha1.ConditionHostResourcesReady, v1alpha1.ConditionTrue, "SetupComplete", "")

			err := TransitionToDetached(ds)

			if tt.wantError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ds.GetPhase() != v1alpha1.DeviceSetPhaseDetached {
				t.Errorf("Expected phase Detached, got %s", ds.GetPhase())
			}
			if GetCondition(ds, v1alpha1.ConditionHostResourcesReady) != nil {
				t.Error("Expected HostResourcesReady to be removed")
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		phase v1alpha1.DeviceSetPhase
		want  bool
	}{
		{v1alpha1.DeviceSetPhasePending, false},
		{v1alpha1.DeviceSetPhaseAttaching, false},
		{v1alpha1.DeviceSetPhaseAttached, true},
		{v1alpha1.DeviceSetPhaseDetached, true},
		{v1alpha1.DeviceSetPhaseFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := IsTerminal(tt.phase); got != tt.want {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestGetPhase_DefaultsToPending(t *testing.T) {
	ds := &v1alpha1.DeviceSet{}
	if ds.GetPhase() != v1alpha1.DeviceSetPhasePending {
		t.Errorf("Expected Pending for unset phase, got %s", ds.GetPhase())
	}
}
