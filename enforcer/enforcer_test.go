package enforcer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"vpnca/cloud"
)

func TestDisconnectAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const endpointID = "cvpn-endpoint-1"

	clients, mem := cloud.NewMemory()
	mem.AddSession(endpointID, "session-1", "bob", true)
	mem.AddSession(endpointID, "session-2", "bob", true)
	mem.AddSession(endpointID, "session-3", "alice", true)
	mem.AddSession(endpointID, "session-4", "bob", false) // already gone

	en := New(clients.ControlPlane)

	// only bob's active sessions are terminated
	n, err := en.DisconnectAll(ctx, endpointID, "bob")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	sessions, err := clients.ControlPlane.ListSessions(ctx, endpointID)
	require.NoError(t, err)
	for _, sess := range sessions {
		if sess.CommonName == "bob" {
			require.False(t, sess.Active, "session %s", sess.ID)
		} else {
			require.True(t, sess.Active, "session %s", sess.ID)
		}
	}

	// re-run finds nothing left to do
	n, err = en.DisconnectAll(ctx, endpointID, "bob")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// control plane where one session refuses to terminate
type flakyControlPlane struct {
	cloud.ControlPlane
	stuck string
}

func (cp *flakyControlPlane) TerminateSession(ctx context.Context, endpointID, sessionID string) error {
	if sessionID == cp.stuck {
		return cloud.NewRemoteError("TerminateClientVpnConnections", errors.New("throttled"))
	}
	return cp.ControlPlane.TerminateSession(ctx, endpointID, sessionID)
}

func TestDisconnectAllPartialFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const endpointID = "cvpn-endpoint-1"

	clients, mem := cloud.NewMemory()
	mem.AddSession(endpointID, "session-1", "bob", true)
	mem.AddSession(endpointID, "session-2", "bob", true)
	mem.AddSession(endpointID, "session-3", "bob", true)

	en := New(&flakyControlPlane{ControlPlane: clients.ControlPlane, stuck: "session-2"})

	// one stuck session does not abort the batch; the others still go down
	// and the count reflects them
	n, err := en.DisconnectAll(ctx, endpointID, "bob")
	require.Error(t, err)
	require.Contains(t, err.Error(), "session-2")
	require.Equal(t, 2, n)

	sessions, err := clients.ControlPlane.ListSessions(ctx, endpointID)
	require.NoError(t, err)
	for _, sess := range sessions {
		require.Equal(t, sess.ID == "session-2", sess.Active, "session %s", sess.ID)
	}

	// a retry only has the stuck session left
	n, err = en.DisconnectAll(ctx, endpointID, "bob")
	require.Error(t, err)
	require.Equal(t, 0, n)
}

func TestDisconnectAllNoSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, mem := cloud.NewMemory()
	mem.AddSession("cvpn-endpoint-1", "session-1", "alice", true)

	en := New(clients.ControlPlane)

	n, err := en.DisconnectAll(ctx, "cvpn-endpoint-1", "ghost")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// unknown endpoint is an error, not an empty result
	_, err = en.DisconnectAll(ctx, "cvpn-endpoint-missing", "alice")
	require.Error(t, err)
}
