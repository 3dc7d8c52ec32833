package device

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// mockSwitch is a mock implementation of VSwitch for testing.
type mockSwitch struct {
	mu sync.Mutex

	bridgeFunc      func(ctx context.Context, name string) (*Bridge, error)
	networkVLANFunc func(ctx context.Context, network string) (int, bool, error)

	bridgeCalls      []string
	networkVLANCalls []string
}

// newMockSwitch returns a switch that knows no bridges.
func newMockSwitch() *mockSwitch {
	return &mockSwitch{
		bridgeFunc: func(ctx context.Context, name string) (*Bridge, error) {
			return nil, nil
		},
		networkVLANFunc: func(ctx context.Context, network string) (int, bool, error) {
			return 0, false, nil
		},
	}
}

// newOVSSwitch returns a switch reporting name as an OVS bridge tagged
// with vlan.
func newOVSSwitch(name string, vlan int) *mockSwitch {
	m := newMockSwitch()
	m.bridgeFunc = func(ctx context.Context, n string) (*Bridge, error) {
		if n != name {
			return nil, nil
		}
		return &Bridge{Name: n, VirtualSwitch: true}, nil
	}
	m.networkVLANFunc = func(ctx context.Context, n string) (int, bool, error) {
		if n != name || vlan == 0 {
			return 0, false, nil
		}
		return vlan, true, nil
	}
	return m
}

func (m *mockSwitch) Bridge(ctx context.Context, name string) (*Bridge, error) {
	m.mu.Lock()
	m.bridgeCalls = append(m.bridgeCalls, name)
	m.mu.Unlock()
	return m.bridgeFunc(ctx, name)
}

func (m *mockSwitch) NetworkVLAN(ctx context.Context, network string) (int, bool, error) {
	m.mu.Lock()
	m.networkVLANCalls = append(m.networkVLANCalls, network)
	m.mu.Unlock()
	return m.networkVLANFunc(ctx, network)
}

// mockInventory is a mock implementation of NetInventory for testing.
type mockInventory struct {
	networkIPFunc  func(ctx context.Context, network string) (string, error)
	networkIPCalls []string
}

func (m *mockInventory) NetworkIP(ctx context.Context, network string) (string, error) {
	m.networkIPCalls = append(m.networkIPCalls, network)
	return m.networkIPFunc(ctx, network)
}

// mockRNG is a mock implementation of HWRNG for testing.
type mockRNG struct {
	mu sync.Mutex

	claimFunc   func(ctx context.Context, vmID string) error
	releaseFunc func(ctx context.Context, vmID string) error

	claimCalls   []string
	releaseCalls []string
}

func newMockRNG() *mockRNG {
	return &mockRNG{
		claimFunc:   func(ctx context.Context, vmID string) error { return nil },
		releaseFunc: func(ctx context.Context, vmID string) error { return nil },
	}
}

func (m *mockRNG) Claim(ctx context.Context, vmID string) error {
	m.mu.Lock()
	m.claimCalls = append(m.claimCalls, vmID)
	m.mu.Unlock()
	return m.claimFunc(ctx, vmID)
}

func (m *mockRNG) Release(ctx context.Context, vmID string) error {
	m.mu.Lock()
	m.releaseCalls = append(m.releaseCalls, vmID)
	m.mu.Unlock()
	return m.releaseFunc(ctx, vmID)
}

// mockNetworks is a mock implementation of NetworkManager for testing.
type mockNetworks struct {
	mu sync.Mutex

	createFunc func(ctx context.Context, network, vmID string) error
	deleteFunc func(ctx context.Context, network, vmID string) error

	createCalls []string
	deleteCalls []string
}

func newMockNetworks() *mockNetworks {
	return &mockNetworks{
		createFunc: func(ctx context.Context, network, vmID string) error { return nil },
		deleteFunc: func(ctx context.Context, network, vmID string) error { return nil },
	}
}

func (m *mockNetworks) Create(ctx context.Context, network, vmID string) error {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, network+"/"+vmID)
	m.mu.Unlock()
	return m.createFunc(ctx, network, vmID)
}

func (m *mockNetworks) Delete(ctx context.Context, network, vmID string) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, network+"/"+vmID)
	m.mu.Unlock()
	return m.deleteFunc(ctx, network, vmID)
}

// mockConsoles is a mock implementation of ChannelManager for testing.
type mockConsoles struct {
	prepareFunc func(ctx context.Context, path string) error
	cleanupFunc func(ctx context.Context, path string) error

	prepareCalls []string
	cleanupCalls []string
}

func newMockConsoles() *mockConsoles {
	return &mockConsoles{
		prepareFunc: func(ctx context.Context, path string) error { return nil },
		cleanupFunc: func(ctx context.Context, path string) error { return nil },
	}
}

func (m *mockConsoles) Prepare(ctx context.Context, path string) error {
	m.prepareCalls = append(m.prepareCalls, path)
	return m.prepareFunc(ctx, path)
}

func (m *mockConsoles) Cleanup(ctx context.Context, path string) error {
	m.cleanupCalls = append(m.cleanupCalls, path)
	return m.cleanupFunc(ctx, path)
}

// mockLeases is a mock implementation of LeaseResolver for testing.
type mockLeases struct {
	leaseInfoFunc  func(ctx context.Context, lockspace, key string) (string, int64, error)
	leaseInfoCalls []string
}

func (m *mockLeases) LeaseInfo(ctx context.Context, lockspace, key string) (string, int64, error) {
	m.leaseInfoCalls = append(m.leaseInfoCalls, lockspace+"/"+key)
	return m.leaseInfoFunc(ctx, lockspace, key)
}

// testEnv bundles every mock collaborator with a discarding logger.
type testEnv struct {
	*Env
	sw       *mockSwitch
	inv      *mockInventory
	rng      *mockRNG
	networks *mockNetworks
	consoles *mockConsoles
	leases   *mockLeases
	logs     *test.Hook
}

func newTestEnv() *testEnv {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	te := &testEnv{
		sw: newMockSwitch(),
		inv: &mockInventory{networkIPFunc: func(ctx context.Context, network string) (string, error) {
			return "192.168.1.1", nil
		}},
		rng:      newMockRNG(),
		networks: newMockNetworks(),
		consoles: newMockConsoles(),
		leases: &mockLeases{leaseInfoFunc: func(ctx context.Context, lockspace, key string) (string, int64, error) {
			return "/dev/" + lockspace + "/leases", 1048576, nil
		}},
		logs: hook,
	}
	te.Env = &Env{
		Switch:    te.sw,
		Inventory: te.inv,
		RNG:       te.rng,
		Networks:  te.networks,
		Consoles:  te.consoles,
		Leases:    te.leases,
		Log:       logger,
	}
	return te
}
