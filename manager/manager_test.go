package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"vpnca/cloud"
	"vpnca/deploy"
	"vpnca/ledger"
	"vpnca/pkg/testutils"
)

type testManager struct {
	*Manager

	mem *cloud.Memory
	dir string
}

func newTestManager(t *testing.T) *testManager {
	dir := t.TempDir()
	viper.Set("certs_dir", filepath.Join(dir, "certs"))
	viper.Set("profile_dir", filepath.Join(dir, "profiles"))
	viper.Set("ledger_db", fmt.Sprintf("sqlite://%s", filepath.Join(dir, "ledger.db")))
	viper.Set("deployment_info", filepath.Join(dir, "vpn_deployment_info.json"))
	t.Cleanup(func() {
		for _, key := range []string{"certs_dir", "profile_dir", "ledger_db", "deployment_info"} {
			viper.Set(key, nil)
		}
	})

	clients, mem := cloud.NewMemory()
	m := testutils.Must1(New(clients))
	t.Cleanup(func() { m.Close() })

	return &testManager{Manager: m, mem: mem, dir: dir}
}

func (m *testManager) newEndpoint(t *testing.T) string {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpointID, err := m.clients.ControlPlane.CreateEndpoint(ctx, &cloud.CreateEndpointRequest{})
	require.NoError(t, err)
	return endpointID
}

func TestAddUser(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpointID := m.newEndpoint(t)

	path, err := m.AddUser(ctx, endpointID, "alice")
	require.NoError(t, err)
	require.FileExists(t, path)
	require.True(t, m.keys.HasCA()) // CA bootstrapped on demand
	require.True(t, m.keys.HasIdentity("alice"))

	entries := testutils.Must1(m.Ledger().List(ctx, ledger.ListOpt{CommonName: "alice"}))
	require.Len(t, entries, 1)
	require.Equal(t, ledger.StatusActive.String(), entries[0].Status)
}

func TestRemoveUser(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpointID := m.newEndpoint(t)

	path, err := m.AddUser(ctx, endpointID, "alice")
	require.NoError(t, err)

	removed, err := m.RemoveUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, removed, 3) // cert, key, profile
	require.False(t, m.keys.HasIdentity("alice"))
	require.NoFileExists(t, path)

	// removal only deletes local credentials; the ledger entry stays active
	// until an explicit revoke
	entries := testutils.Must1(m.Ledger().List(ctx, ledger.ListOpt{CommonName: "alice"}))
	require.Len(t, entries, 1)
	require.Equal(t, ledger.StatusActive.String(), entries[0].Status)
}

func TestRevokeUser(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpointID := m.newEndpoint(t)

	_, err := m.AddUser(ctx, endpointID, "alice")
	require.NoError(t, err)

	serial, err := m.RevokeUser(ctx, endpointID, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1), serial)

	// CRL was published to both distribution points
	require.NotEmpty(t, m.mem.CRL(endpointID))

	serials := testutils.Must1(m.Ledger().RevokedSerials(ctx))
	require.Equal(t, []uint64{serial}, serials)
}

func TestBanUser(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpointID := m.newEndpoint(t)

	_, err := m.AddUser(ctx, endpointID, "bob")
	require.NoError(t, err)
	m.mem.AddSession(endpointID, "session-1", "bob", true)

	result, err := m.BanUser(ctx, endpointID, "bob")
	require.NoError(t, err)
	require.False(t, result.Failed())
	require.Equal(t, 1, result.Disconnected)
	require.NotEmpty(t, m.mem.CRL(endpointID))
}

func TestEndpointIDFallback(t *testing.T) {
	m := newTestManager(t)

	// explicit value wins
	endpoint, err := m.EndpointID("cvpn-endpoint-x")
	require.NoError(t, err)
	require.Equal(t, "cvpn-endpoint-x", endpoint)

	// no record, no flag
	_, err = m.EndpointID("")
	require.Error(t, err)

	// falls back to the deployment record
	require.NoError(t, deploy.SaveRecord(filepath.Join(m.dir, "vpn_deployment_info.json"), &deploy.Record{
		EndpointID: "cvpn-endpoint-deployed",
		VPCCIDR:    "10.1.0.0/16",
	}))

	endpoint, err = m.EndpointID("")
	require.NoError(t, err)
	require.Equal(t, "cvpn-endpoint-deployed", endpoint)
}
