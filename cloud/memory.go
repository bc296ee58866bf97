package cloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
)

// NewMemory collaborators backed by process memory, for tests and dry runs.
// The returned Memory exposes seeding and inspection hooks the cloud
// interfaces do not.
func NewMemory() (*Clients, *Memory) {
	mem := newMemoryState()
	cp := &memoryControlPlane{state: mem}
	mirror := &memoryMirror{state: mem}

	clients := &Clients{
		ControlPlane: cp,
		Issuance:     &memoryIssuance{state: mem},
		Mirror:       mirror,
	}
	return clients, &Memory{cp: cp, mirror: mirror}
}

// Memory seeding and inspection hooks over the in-memory collaborators
type Memory struct {
	cp     *memoryControlPlane
	mirror *memoryMirror
}

func (m *Memory) AddSession(endpointID, sessionID, commonName string, active bool) {
	m.cp.AddSession(endpointID, sessionID, commonName, active)
}

func (m *Memory) AddVPC(vpcID, cidr string) { m.cp.AddVPC(vpcID, cidr) }

// CRL the endpoint's current revocation list
func (m *Memory) CRL(endpointID string) []byte { return m.cp.CRL(endpointID) }

// Object stored mirror content
func (m *Memory) Object(bucket, key string) []byte { return m.mirror.Object(bucket, key) }

type memoryEndpoint struct {
	endpoint *Endpoint
	subnets  []string
	sessions map[string]*Session
	rules    []*Rule
	routes   []*Route
	crlPEM   []byte
}

type memoryState struct {
	mu sync.Mutex

	nextID    int
	endpoints map[string]*memoryEndpoint
	certs     map[string]*CertificateSummary
	vpcs      map[string]string            // vpc id -> cidr
	objects   map[string]map[string][]byte // bucket -> key -> data
}

func newMemoryState() *memoryState {
	return &memoryState{
		endpoints: make(map[string]*memoryEndpoint),
		certs:     make(map[string]*CertificateSummary),
		vpcs:      make(map[string]string),
		objects:   make(map[string]map[string][]byte),
	}
}

func (s *memoryState) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%08x", prefix, s.nextID)
}

func (s *memoryState) endpoint(id string) (*memoryEndpoint, error) {
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, NewRemoteError("DescribeClientVpnEndpoints", errors.Errorf("endpoint not found: %s", id))
	}
	return ep, nil
}

type memoryControlPlane struct {
	state *memoryState
}

var _ ControlPlane = (*memoryControlPlane)(nil)

// AddSession seed a live session; test/dry-run hook
func (cp *memoryControlPlane) AddSession(endpointID, sessionID, commonName string, active bool) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		ep = &memoryEndpoint{endpoint: &Endpoint{ID: endpointID}, sessions: map[string]*Session{}}
		cp.state.endpoints[endpointID] = ep
	}
	ep.sessions[sessionID] = &Session{ID: sessionID, CommonName: commonName, Active: active}
}

// AddVPC seed a VPC CIDR; test/dry-run hook
func (cp *memoryControlPlane) AddVPC(vpcID, cidr string) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	cp.state.vpcs[vpcID] = cidr
}

// CRL the endpoint's current revocation list; test/dry-run hook
func (cp *memoryControlPlane) CRL(endpointID string) []byte {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	if ep, ok := cp.state.endpoints[endpointID]; ok {
		return ep.crlPEM
	}
	return nil
}

func (cp *memoryControlPlane) ListSessions(ctx context.Context, endpointID string) ([]*Session, error) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return nil, err
	}

	sessions := []*Session{}
	for _, sess := range ep.sessions {
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (cp *memoryControlPlane) TerminateSession(ctx context.Context, endpointID, sessionID string) error {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return err
	}

	sess, ok := ep.sessions[sessionID]
	if !ok {
		return NewRemoteError("TerminateClientVpnConnections", errors.Errorf("session not found: %s", sessionID))
	}
	sess.Active = false
	return nil
}

func (cp *memoryControlPlane) ImportCRL(ctx context.Context, endpointID string, crlPEM []byte) error {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return err
	}

	ep.crlPEM = append([]byte{}, crlPEM...)
	return nil
}

func (cp *memoryControlPlane) ListEndpoints(ctx context.Context) ([]*Endpoint, error) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	endpoints := []*Endpoint{}
	for _, ep := range cp.state.endpoints {
		endpoints = append(endpoints, ep.endpoint)
	}
	return endpoints, nil
}

func (cp *memoryControlPlane) CreateEndpoint(ctx context.Context, req *CreateEndpointRequest) (string, error) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	id := cp.state.newID("cvpn-endpoint")
	cp.state.endpoints[id] = &memoryEndpoint{
		endpoint: &Endpoint{ID: id, ServerCertRef: req.ServerCertRef},
		sessions: map[string]*Session{},
	}
	return id, nil
}

func (cp *memoryControlPlane) AssociateSubnet(ctx context.Context, endpointID, subnetID string) error {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return err
	}

	ep.subnets = append(ep.subnets, subnetID)
	return nil
}

func (cp *memoryControlPlane) ListRules(ctx context.Context, endpointID string) ([]*Rule, error) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return nil, err
	}
	return append([]*Rule{}, ep.rules...), nil
}

func (cp *memoryControlPlane) CreateRule(ctx context.Context, endpointID, cidr string) error {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return err
	}

	if len(fx.Filter(ep.rules, func(r *Rule) bool { return r.CIDR == cidr })) > 0 {
		return errors.Wrapf(ErrDuplicate, "rule %s", cidr)
	}

	ep.rules = append(ep.rules, &Rule{CIDR: cidr, Active: true})
	return nil
}

func (cp *memoryControlPlane) ListRoutes(ctx context.Context, endpointID string) ([]*Route, error) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return nil, err
	}
	return append([]*Route{}, ep.routes...), nil
}

func (cp *memoryControlPlane) CreateRoute(ctx context.Context, endpointID, cidr, subnetID string) error {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	ep, err := cp.state.endpoint(endpointID)
	if err != nil {
		return err
	}

	if len(fx.Filter(ep.routes, func(r *Route) bool { return r.CIDR == cidr })) > 0 {
		return errors.Wrapf(ErrDuplicate, "route %s", cidr)
	}

	ep.routes = append(ep.routes, &Route{CIDR: cidr, Active: true})
	return nil
}

func (cp *memoryControlPlane) VPCCIDR(ctx context.Context, vpcID string) (string, error) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	cidr, ok := cp.state.vpcs[vpcID]
	if !ok {
		return "", NewRemoteError("DescribeVpcs", errors.Errorf("vpc not found: %s", vpcID))
	}
	return cidr, nil
}

func (cp *memoryControlPlane) ExportClientConfig(ctx context.Context, endpointID string) (string, error) {
	cp.state.mu.Lock()
	defer cp.state.mu.Unlock()

	if _, err := cp.state.endpoint(endpointID); err != nil {
		return "", err
	}

	return fmt.Sprintf("client\ndev tun\nremote %s.cvpn.example.com 443\n", endpointID), nil
}

type memoryIssuance struct {
	state *memoryState
}

var _ Issuance = (*memoryIssuance)(nil)

func (is *memoryIssuance) RequestCertificate(ctx context.Context, domain string) (string, error) {
	is.state.mu.Lock()
	defer is.state.mu.Unlock()

	ref := is.state.newID("arn:cert")
	is.state.certs[ref] = &CertificateSummary{Ref: ref, Domain: domain, Status: "PENDING_VALIDATION"}
	return ref, nil
}

func (is *memoryIssuance) ImportCertificate(ctx context.Context, certPEM, keyPEM []byte) (string, error) {
	is.state.mu.Lock()
	defer is.state.mu.Unlock()

	ref := is.state.newID("arn:cert")
	is.state.certs[ref] = &CertificateSummary{Ref: ref, Domain: "VPN-CA", Status: "ISSUED"}
	return ref, nil
}

func (is *memoryIssuance) ListCertificates(ctx context.Context) ([]*CertificateSummary, error) {
	is.state.mu.Lock()
	defer is.state.mu.Unlock()

	certs := []*CertificateSummary{}
	for _, cert := range is.state.certs {
		certs = append(certs, cert)
	}
	return certs, nil
}

func (is *memoryIssuance) DeleteCertificate(ctx context.Context, ref string) error {
	is.state.mu.Lock()
	defer is.state.mu.Unlock()

	if _, ok := is.state.certs[ref]; !ok {
		return NewRemoteError("DeleteCertificate", errors.Errorf("certificate not found: %s", ref))
	}
	delete(is.state.certs, ref)
	return nil
}

type memoryMirror struct {
	state *memoryState
}

var _ Mirror = (*memoryMirror)(nil)

func (m *memoryMirror) EnsureBucket(ctx context.Context, bucket string) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	if _, ok := m.state.objects[bucket]; !ok {
		m.state.objects[bucket] = map[string][]byte{}
	}
	return nil
}

func (m *memoryMirror) Put(ctx context.Context, bucket, key string, data []byte) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	objects, ok := m.state.objects[bucket]
	if !ok {
		return NewRemoteError("PutObject", errors.Errorf("bucket not found: %s", bucket))
	}

	objects[key] = append([]byte{}, data...)
	return nil
}

// Object stored mirror content; test/dry-run hook
func (m *memoryMirror) Object(bucket, key string) []byte {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	if objects, ok := m.state.objects[bucket]; ok {
		return objects[key]
	}
	return nil
}
