// Package cloud defines the remote collaborators the CA subsystem drives: the
// VPN control plane, the hosted certificate issuance service and the object
// mirror holding the published CRL. Implementations: AWS (aws.go) and an in
// memory backend (memory.go) for tests and dry runs.
package cloud

import (
	"context"
	"fmt"
)

// RemoteError wraps a collaborator call failure with the operation that failed
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Err.Error()) }
func (e *RemoteError) Unwrap() error { return e.Err }

func NewRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

// Session a live client session on the endpoint
type Session struct {
	ID         string
	CommonName string
	Active     bool
}

// Rule an endpoint authorization rule; Active covers the in-progress
// "authorizing" state as well
type Rule struct {
	CIDR   string
	Active bool
}

// Route an endpoint route; Active covers the in-progress "creating" state
type Route struct {
	CIDR   string
	Active bool
}

// Endpoint a managed VPN access endpoint
type Endpoint struct {
	ID            string
	ServerCertRef string
}

// CreateEndpointRequest parameters for a new access endpoint
type CreateEndpointRequest struct {
	ClientCIDR    string `validate:"required,cidrv4"`
	ServerCertRef string `validate:"required"`
	ClientCARef   string `validate:"required"`
	DNSServers    []string
}

// ErrDuplicate is returned by CreateRule/CreateRoute when the remote surface
// reports the entry already exists; reconciliation treats it as success.
var ErrDuplicate = fmt.Errorf("duplicate rule or route")

// ControlPlane the managed VPN endpoint control plane
type ControlPlane interface {
	ListSessions(ctx context.Context, endpointID string) ([]*Session, error)
	TerminateSession(ctx context.Context, endpointID, sessionID string) error

	// ImportCRL replaces the endpoint's revocation list with crlPEM
	ImportCRL(ctx context.Context, endpointID string, crlPEM []byte) error

	ListEndpoints(ctx context.Context) ([]*Endpoint, error)
	CreateEndpoint(ctx context.Context, req *CreateEndpointRequest) (string, error)
	AssociateSubnet(ctx context.Context, endpointID, subnetID string) error

	ListRules(ctx context.Context, endpointID string) ([]*Rule, error)
	CreateRule(ctx context.Context, endpointID, cidr string) error
	ListRoutes(ctx context.Context, endpointID string) ([]*Route, error)
	CreateRoute(ctx context.Context, endpointID, cidr, subnetID string) error

	VPCCIDR(ctx context.Context, vpcID string) (string, error)
	ExportClientConfig(ctx context.Context, endpointID string) (string, error)
}

// CertificateSummary an issuance service certificate reference
type CertificateSummary struct {
	Ref    string
	Domain string
	Status string
}

// Issuance the hosted certificate issuance service; results are opaque
// references
type Issuance interface {
	// RequestCertificate requests a domain certificate with DNS validation
	RequestCertificate(ctx context.Context, domain string) (string, error)

	// ImportCertificate imports a certificate and key pair, returning its reference
	ImportCertificate(ctx context.Context, certPEM, keyPEM []byte) (string, error)

	ListCertificates(ctx context.Context) ([]*CertificateSummary, error)
	DeleteCertificate(ctx context.Context, ref string) error
}

// Mirror the object store used as the CRL drop point
type Mirror interface {
	// EnsureBucket creates the container when absent; already exists is success
	EnsureBucket(ctx context.Context, bucket string) error

	// Put overwrites the object under key
	Put(ctx context.Context, bucket, key string, data []byte) error
}

// Clients collaborator handles bundled for injection
type Clients struct {
	ControlPlane ControlPlane
	Issuance     Issuance
	Mirror       Mirror
}
