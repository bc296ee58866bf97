package cloud

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRemoteError(t *testing.T) {
	inner := errors.New("boom")
	err := NewRemoteError("DescribeVpcs", inner)
	require.EqualError(t, err, "DescribeVpcs: boom")
	require.ErrorIs(t, err, inner)

	require.NoError(t, NewRemoteError("DescribeVpcs", nil))
}

func TestMemoryDuplicateRulesAndRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, _ := NewMemory()

	endpointID, err := clients.ControlPlane.CreateEndpoint(ctx, &CreateEndpointRequest{})
	require.NoError(t, err)

	require.NoError(t, clients.ControlPlane.CreateRule(ctx, endpointID, "10.0.0.0/16"))
	require.ErrorIs(t, clients.ControlPlane.CreateRule(ctx, endpointID, "10.0.0.0/16"), ErrDuplicate)

	require.NoError(t, clients.ControlPlane.CreateRoute(ctx, endpointID, "10.0.0.0/16", "subnet-1"))
	require.ErrorIs(t, clients.ControlPlane.CreateRoute(ctx, endpointID, "10.0.0.0/16", "subnet-1"), ErrDuplicate)

	// a different cidr on the same endpoint is not a duplicate
	require.NoError(t, clients.ControlPlane.CreateRule(ctx, endpointID, "0.0.0.0/0"))
	require.NoError(t, clients.ControlPlane.CreateRoute(ctx, endpointID, "0.0.0.0/0", "subnet-1"))

	rules, err := clients.ControlPlane.ListRules(ctx, endpointID)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	routes, err := clients.ControlPlane.ListRoutes(ctx, endpointID)
	require.NoError(t, err)
	require.Len(t, routes, 2)
}

func TestMemoryEndpointLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, mem := NewMemory()

	endpointID, err := clients.ControlPlane.CreateEndpoint(ctx, &CreateEndpointRequest{ServerCertRef: "arn:cert-1"})
	require.NoError(t, err)
	require.NoError(t, clients.ControlPlane.AssociateSubnet(ctx, endpointID, "subnet-1"))

	endpoints, err := clients.ControlPlane.ListEndpoints(ctx)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	require.Equal(t, "arn:cert-1", endpoints[0].ServerCertRef)

	require.NoError(t, clients.ControlPlane.ImportCRL(ctx, endpointID, []byte("crl pem")))
	require.Equal(t, []byte("crl pem"), mem.CRL(endpointID))

	_, err = clients.ControlPlane.ListSessions(ctx, "cvpn-endpoint-missing")
	require.Error(t, err)
}

func TestMemoryIssuance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, _ := NewMemory()

	ref, err := clients.Issuance.RequestCertificate(ctx, "vpn.example.com")
	require.NoError(t, err)

	certs, err := clients.Issuance.ListCertificates(ctx)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	require.Equal(t, "vpn.example.com", certs[0].Domain)
	require.Equal(t, "PENDING_VALIDATION", certs[0].Status)

	require.NoError(t, clients.Issuance.DeleteCertificate(ctx, ref))
	require.Error(t, clients.Issuance.DeleteCertificate(ctx, ref))
}

func TestMemoryMirror(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, mem := NewMemory()

	// put without bucket
	require.Error(t, clients.Mirror.Put(ctx, "bucket", "key", []byte("data")))

	require.NoError(t, clients.Mirror.EnsureBucket(ctx, "bucket"))
	require.NoError(t, clients.Mirror.EnsureBucket(ctx, "bucket")) // idempotent
	require.NoError(t, clients.Mirror.Put(ctx, "bucket", "key", []byte("data")))
	require.Equal(t, []byte("data"), mem.Object("bucket", "key"))

	// overwrite
	require.NoError(t, clients.Mirror.Put(ctx, "bucket", "key", []byte("data2")))
	require.Equal(t, []byte("data2"), mem.Object("bucket", "key"))
}
