// Package keystore owns durable key material: the CA key pair and the
// per-identity key pairs, stored as PEM files under a single directory.
package keystore

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"
)

var ErrNotFound = errors.New("key material not found")

const (
	caCertFile = "ca.crt"
	caKeyFile  = "ca.key"
)

// KeyMaterial PEM encoded key pair, plus the signed certificate for leaf identities
type KeyMaterial struct {
	Cert []byte // certificate PEM
	Key  []byte // private key PEM
}

// KeyStore file system backed key material store
type KeyStore struct {
	dir string
}

func New(dir string) *KeyStore { return &KeyStore{dir: dir} }

func (ks *KeyStore) Dir() string { return ks.dir }

func (ks *KeyStore) certPath(cn string) string { return filepath.Join(ks.dir, cn+".crt") }
func (ks *KeyStore) keyPath(cn string) string  { return filepath.Join(ks.dir, cn+".key") }

func (ks *KeyStore) HasCA() bool {
	for _, name := range []string{caCertFile, caKeyFile} {
		if _, err := os.Stat(filepath.Join(ks.dir, name)); err != nil {
			return false
		}
	}
	return true
}

func (ks *KeyStore) LoadCA() (*KeyMaterial, error) {
	return ks.load(filepath.Join(ks.dir, caCertFile), filepath.Join(ks.dir, caKeyFile))
}

func (ks *KeyStore) SaveCA(material *KeyMaterial) error {
	return ks.save(filepath.Join(ks.dir, caCertFile), filepath.Join(ks.dir, caKeyFile), material)
}

func (ks *KeyStore) HasIdentity(cn string) bool {
	_, err := os.Stat(ks.certPath(cn))
	return err == nil
}

func (ks *KeyStore) LoadIdentity(cn string) (*KeyMaterial, error) {
	return ks.load(ks.certPath(cn), ks.keyPath(cn))
}

func (ks *KeyStore) SaveIdentity(cn string, material *KeyMaterial) error {
	return ks.save(ks.certPath(cn), ks.keyPath(cn), material)
}

// RemoveIdentity delete local credential files; missing files are not an error.
// The revocation ledger entry, if any, is left untouched.
func (ks *KeyStore) RemoveIdentity(cn string) ([]string, error) {
	removed := []string{}
	for _, path := range []string{ks.certPath(cn), ks.keyPath(cn)} {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		if err := os.Remove(path); err != nil {
			return removed, errors.Wrapf(err, "fail to remove identity %s", cn)
		}
		removed = append(removed, path)
	}

	return removed, nil
}

func (ks *KeyStore) load(certPath, keyPath string) (*KeyMaterial, error) {
	cert, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", certPath)
		}
		return nil, errors.Wrap(err, "fail to load key material")
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", keyPath)
		}
		return nil, errors.Wrap(err, "fail to load key material")
	}

	return &KeyMaterial{Cert: cert, Key: key}, nil
}

func (ks *KeyStore) save(certPath, keyPath string, material *KeyMaterial) error {
	if err := os.MkdirAll(ks.dir, 0755); err != nil {
		return errors.Wrap(err, "fail to save key material")
	}

	log.Debugf("saving key material: %s", certPath)

	if err := os.WriteFile(certPath, material.Cert, 0644); err != nil {
		return errors.Wrap(err, "fail to save key material")
	}

	// private keys are never group or world readable
	if err := os.WriteFile(keyPath, material.Key, 0600); err != nil {
		return errors.Wrap(err, "fail to save key material")
	}

	return nil
}
