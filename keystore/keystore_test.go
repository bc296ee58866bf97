package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCA(t *testing.T) {
	ks := New(filepath.Join(t.TempDir(), "certs"))

	require.False(t, ks.HasCA())

	_, err := ks.LoadCA()
	require.ErrorIs(t, errors.Cause(err), ErrNotFound)

	material := &KeyMaterial{Cert: []byte("cert pem"), Key: []byte("key pem")}
	require.NoError(t, ks.SaveCA(material))
	require.True(t, ks.HasCA())

	loaded, err := ks.LoadCA()
	require.NoError(t, err)
	require.Equal(t, material, loaded)
}

func TestIdentity(t *testing.T) {
	ks := New(t.TempDir())

	require.False(t, ks.HasIdentity("alice"))

	material := &KeyMaterial{Cert: []byte("cert pem"), Key: []byte("key pem")}
	require.NoError(t, ks.SaveIdentity("alice", material))
	require.True(t, ks.HasIdentity("alice"))

	loaded, err := ks.LoadIdentity("alice")
	require.NoError(t, err)
	require.Equal(t, material, loaded)

	require.False(t, ks.HasIdentity("bob"))
}

func TestKeyFilePermission(t *testing.T) {
	ks := New(t.TempDir())

	require.NoError(t, ks.SaveIdentity("alice", &KeyMaterial{Cert: []byte("c"), Key: []byte("k")}))

	info, err := os.Stat(filepath.Join(ks.Dir(), "alice.key"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(ks.Dir(), "alice.crt"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestRemoveIdentity(t *testing.T) {
	ks := New(t.TempDir())

	// removing what does not exist is not an error
	removed, err := ks.RemoveIdentity("ghost")
	require.NoError(t, err)
	require.Empty(t, removed)

	require.NoError(t, ks.SaveIdentity("alice", &KeyMaterial{Cert: []byte("c"), Key: []byte("k")}))

	removed, err = ks.RemoveIdentity("alice")
	require.NoError(t, err)
	require.Len(t, removed, 2)
	require.False(t, ks.HasIdentity("alice"))
}
