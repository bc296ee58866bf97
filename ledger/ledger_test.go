package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"vpnca/pkg/testutils"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	dburl := fmt.Sprintf("sqlite://%s", filepath.Join(t.TempDir(), testutils.DBName(t.Name())+".db"))

	ldgr, err := New(dburl)
	require.NoError(t, err)
	t.Cleanup(func() { ldgr.Close() })

	return ldgr, dburl
}

func TestRecordIssuance(t *testing.T) {
	ldgr, _ := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// serials start at 1 and never repeat, even for the same identity
	var last uint64
	for _, cn := range []string{"alice", "bob", "alice"} {
		serial, err := ldgr.RecordIssuance(ctx, cn)
		require.NoError(t, err)
		require.Equal(t, last+1, serial)
		last = serial
	}

	entries, err := ldgr.List(ctx, ListOpt{CommonName: "alice"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, StatusActive.String(), entries[0].Status)
	require.NotZero(t, entries[0].IssuedAt)

	_, err = ldgr.RecordIssuance(ctx, "")
	require.Error(t, err)
}

func TestSerialSurvivesReopen(t *testing.T) {
	ldgr, dburl := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serial, err := ldgr.RecordIssuance(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, ldgr.Close())

	// reopening must continue the counter, not restart it
	reopened := testutils.Must1(New(dburl))
	defer reopened.Close()

	serial2, err := reopened.RecordIssuance(ctx, "bob")
	require.NoError(t, err)
	require.Greater(t, serial2, serial)
}

func TestRevoke(t *testing.T) {
	ldgr, _ := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ldgr.Revoke(ctx, "ghost")
	require.ErrorIs(t, errors.Cause(err), ErrNotFound)

	serial := testutils.Must1(ldgr.RecordIssuance(ctx, "alice"))

	got, err := ldgr.Revoke(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, serial, got)

	// second revoke is a no-op success with the same serial
	got, err = ldgr.Revoke(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, serial, got)

	revoked, err := ldgr.Revoked(ctx)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	require.Equal(t, serial, revoked[0].Serial)
	require.NotNil(t, revoked[0].RevokedAt)
}

func TestRevokeLatestEntry(t *testing.T) {
	ldgr, _ := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testutils.Must1(ldgr.RecordIssuance(ctx, "alice"))
	reissued := testutils.Must1(ldgr.RecordIssuance(ctx, "alice"))

	// the most recent issuance for the identity is revoked
	got, err := ldgr.Revoke(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, reissued, got)

	active, err := ldgr.ActiveSet(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestList(t *testing.T) {
	ldgr, _ := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, cn := range []string{"alice", "bob", "carol"} {
		testutils.Must1(ldgr.RecordIssuance(ctx, cn))
	}
	testutils.Must1(ldgr.Revoke(ctx, "bob"))

	tests := [...]struct {
		name string
		opts ListOpt
		want int
	}{
		{`all entries`, ListOpt{}, 3},
		{`active only`, ListOpt{Status: StatusActive}, 2},
		{`revoked only`, ListOpt{Status: StatusRevoked}, 1},
		{`by common name`, ListOpt{CommonName: "bob"}, 1},
		{`no match`, ListOpt{CommonName: "ghost"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := ldgr.List(ctx, tt.opts)
			require.NoError(t, err)
			require.Len(t, entries, tt.want)
		})
	}
}

func TestRevokedSerials(t *testing.T) {
	ldgr, _ := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, cn := range []string{"alice", "bob", "carol"} {
		testutils.Must1(ldgr.RecordIssuance(ctx, cn))
	}
	testutils.Must1(ldgr.Revoke(ctx, "carol"))
	testutils.Must1(ldgr.Revoke(ctx, "alice"))

	serials, err := ldgr.RevokedSerials(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, serials)
}

func TestNextCRLNumber(t *testing.T) {
	ldgr, dburl := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1 := testutils.Must1(ldgr.NextCRLNumber(ctx))
	n2 := testutils.Must1(ldgr.NextCRLNumber(ctx))
	require.Greater(t, n2, n1)

	// CRL numbers are independent from certificate serials
	serial := testutils.Must1(ldgr.RecordIssuance(ctx, "alice"))
	require.Equal(t, uint64(1), serial)

	require.NoError(t, ldgr.Close())
	reopened := testutils.Must1(New(dburl))
	defer reopened.Close()

	n3 := testutils.Must1(reopened.NextCRLNumber(ctx))
	require.Greater(t, n3, n2)
}
