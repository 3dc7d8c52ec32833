package libvirt

import (
	"context"
	"sync"

	"github.com/digitalocean/go-libvirt"
)

type deviceCall struct {
	Domain string
	XML    string
	Flags  uint32
}

// mockDomainClient is a mock implementation of domainClient for testing.
// Domains are kept as live XML by name.
type mockDomainClient struct {
	mu      sync.Mutex
	domains map[string]string

	getXMLErr  error
	attachFunc func(m *mockDomainClient, dom, xml string) error
	detachFunc func(dom, xml string) error
	updateFunc func(dom, xml string) error

	attachCalls []deviceCall
	detachCalls []deviceCall
	updateCalls []deviceCall
}

func newMockDomainClient(domains map[string]string) *mockDomainClient {
	return &mockDomainClient{domains: domains}
}

func (m *mockDomainClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[name]; !ok {
		return libvirt.Domain{}, libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "domain not found"}
	}
	return libvirt.Domain{Name: name}, nil
}

func (m *mockDomainClient) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getXMLErr != nil {
		return "", m.getXMLErr
	}
	return m.domains[dom.Name], nil
}

func (m *mockDomainClient) DomainAttachDeviceFlags(dom libvirt.Domain, xml string, flags uint32) error {
	m.mu.Lock()
	m.attachCalls = append(m.attachCalls, deviceCall{dom.Name, xml, flags})
	fn := m.attachFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(m, dom.Name, xml)
	}
	return nil
}

func (m *mockDomainClient) DomainDetachDeviceFlags(dom libvirt.Domain, xml string, flags uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachCalls = append(m.detachCalls, deviceCall{dom.Name, xml, flags})
	if m.detachFunc != nil {
		return m.detachFunc(dom.Name, xml)
	}
	return nil
}

func (m *mockDomainClient) DomainUpdateDeviceFlags(dom libvirt.Domain, xml string, flags libvirt.DomainDeviceModifyFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, deviceCall{dom.Name, xml, uint32(flags)})
	if m.updateFunc != nil {
		return m.updateFunc(dom.Name, xml)
	}
	return nil
}

func (m *mockDomainClient) setDomain(name, xml string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = xml
}

// mockNetworkClient is a mock implementation of networkClient. Networks
// map names to their active state.
type mockNetworkClient struct {
	networks map[string]bool

	lookupErr  error
	defineErr  error
	createErr  error
	destroyErr error

	calls []string
}

func newMockNetworkClient() *mockNetworkClient {
	return &mockNetworkClient{networks: make(map[string]bool)}
}

func noNetwork() error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoNetwork), Message: "network not found"}
}

func (m *mockNetworkClient) NetworkLookupByName(name string) (libvirt.Network, error) {
	m.calls = append(m.calls, "lookup "+name)
	if m.lookupErr != nil {
		return libvirt.Network{}, m.lookupErr
	}
	if _, ok := m.networks[name]; !ok {
		return libvirt.Network{}, noNetwork()
	}
	return libvirt.Network{Name: name}, nil
}

func (m *mockNetworkClient) NetworkDefineXML(xml string) (libvirt.Network, error) {
	name := extractName(xml)
	m.calls = append(m.calls, "define "+name)
	if m.defineErr != nil {
		return libvirt.Network{}, m.defineErr
	}
	m.networks[name] = false
	return libvirt.Network{Name: name}, nil
}

func (m *mockNetworkClient) NetworkCreate(net libvirt.Network) error {
	m.calls = append(m.calls, "create "+net.Name)
	if m.createErr != nil {
		return m.createErr
	}
	m.networks[net.Name] = true
	return nil
}

func (m *mockNetworkClient) NetworkDestroy(net libvirt.Network) error {
	m.calls = append(m.calls, "destroy "+net.Name)
	if m.destroyErr != nil {
		return m.destroyErr
	}
	m.networks[net.Name] = false
	return nil
}

func (m *mockNetworkClient) NetworkUndefine(net libvirt.Network) error {
	m.calls = append(m.calls, "undefine "+net.Name)
	delete(m.networks, net.Name)
	return nil
}

// mockRNG records hwrng claims.
type mockRNG struct {
	claims   []string
	releases []string
}

func (m *mockRNG) Claim(ctx context.Context, vmID string) error {
	m.claims = append(m.claims, vmID)
	return nil
}

func (m *mockRNG) Release(ctx context.Context, vmID string) error {
	m.releases = append(m.releases, vmID)
	return nil
}
