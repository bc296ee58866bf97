// Package ca implements the private certificate authority: CA bootstrap and
// leaf certificate issuance, with every issued serial recorded in the
// revocation ledger before the credential is handed out.
package ca

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"vpnca/keystore"
	"vpnca/ledger"
	"vpnca/pkg/helper"
	"vpnca/pkg/helper/x509x"
)

var (
	ErrKeyGeneration  = errors.New("key generation failed")
	ErrNotInitialized = errors.New("CA not initialized")
)

const (
	caCommonName = "VPN-CA"
	policyFile   = "signing-policy.yaml"
)

var caSubject = pkix.Name{
	CommonName:   caCommonName,
	Country:      []string{"US"},
	Province:     []string{"VA"},
	Locality:     []string{"Arlington"},
	Organization: []string{"VPN"},
}

// SigningPolicy generated signing policy artifact, written at CA bootstrap and
// consumed by issuance and CRL generation
type SigningPolicy struct {
	DefaultDays int    `yaml:"default_days"`
	CRLDays     int    `yaml:"default_crl_days"`
	Digest      string `yaml:"default_md"`
}

func defaultSigningPolicy() *SigningPolicy {
	return &SigningPolicy{
		DefaultDays: 3650,
		CRLDays:     30,
		Digest:      "sha256",
	}
}

// Authority the certificate authority. The CA key material is loaded once and
// reused for every signing operation during the process lifetime; construct a
// single Authority and share it.
type Authority struct {
	keys   *keystore.KeyStore
	ledger *ledger.Ledger
	signer Signer

	mu     sync.Mutex
	caCert *x509.Certificate
	caKey  x509x.PrivateKey
	policy *SigningPolicy
}

func New(keys *keystore.KeyStore, ldgr *ledger.Ledger, signer Signer) *Authority {
	return &Authority{
		keys:   keys,
		ledger: ldgr,
		signer: signer,
	}
}

// Initialize bootstrap the CA: reuse existing key material if present,
// otherwise generate a key pair and a 10 year self signed certificate.
// Idempotent.
func (au *Authority) Initialize(ctx context.Context) error {
	if au.keys.HasCA() {
		log.Debugf("using existing CA certificate")
		return au.ensurePolicy()
	}

	key, err := x509x.GenerateKey(x509.SHA256WithRSA)
	if err != nil {
		return errors.Wrapf(ErrKeyGeneration, "%s", err.Error())
	}

	template := &x509.Certificate{
		SerialNumber:          x509x.SerialNumber(1),
		Subject:               caSubject,
		NotBefore:             time.Now().UTC().Add(-time.Hour),
		NotAfter:              helper.AfterNow(10, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}

	derBytes, err := au.signer.SignCertificate(ctx, template, template, key.Public(), key)
	if err != nil {
		return errors.Wrap(err, "fail to initialize CA")
	}

	keyPEM, err := x509x.EncodePrivateKeyToPEM(key)
	if err != nil {
		return errors.Wrap(err, "fail to initialize CA")
	}

	if err := au.keys.SaveCA(&keystore.KeyMaterial{
		Cert: x509x.EncodeCertificateToPEM(derBytes),
		Key:  keyPEM,
	}); err != nil {
		return errors.Wrap(err, "fail to initialize CA")
	}

	log.Infof("CA certificate created: CN=%s", caCommonName)
	return au.ensurePolicy()
}

func (au *Authority) ensurePolicy() error {
	path := filepath.Join(au.keys.Dir(), policyFile)

	policy := &SigningPolicy{}
	if err := helper.ReadYAMLFile(path, policy); err == nil {
		return nil
	}

	return errors.Wrap(helper.WriteYAMLToFile(path, defaultSigningPolicy(), 0644), "fail to write signing policy")
}

// Policy the signing policy artifact, loaded once
func (au *Authority) Policy() (*SigningPolicy, error) {
	au.mu.Lock()
	defer au.mu.Unlock()

	if au.policy != nil {
		return au.policy, nil
	}

	policy := &SigningPolicy{}
	if err := helper.ReadYAMLFile(filepath.Join(au.keys.Dir(), policyFile), policy); err != nil {
		return nil, errors.Wrapf(ErrNotInitialized, "no signing policy: %s", err.Error())
	}

	au.policy = policy
	return policy, nil
}

// Material CA certificate and private key, loaded once and cached for the
// process lifetime
func (au *Authority) Material() (*x509.Certificate, x509x.PrivateKey, error) {
	au.mu.Lock()
	defer au.mu.Unlock()

	if au.caCert != nil {
		return au.caCert, au.caKey, nil
	}

	material, err := au.keys.LoadCA()
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return nil, nil, errors.Wrapf(ErrNotInitialized, "%s", err.Error())
		}
		return nil, nil, errors.Wrap(err, "fail to load CA material")
	}

	cert, err := x509x.ParseCertificate(material.Cert)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fail to load CA material")
	}

	key, err := x509x.ParsePrivateKey(material.Key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fail to load CA material")
	}

	au.caCert, au.caKey = cert, key
	return cert, key, nil
}

// MaterialPEM the CA certificate and private key PEM, for upload to the
// issuance service
func (au *Authority) MaterialPEM() ([]byte, []byte, error) {
	material, err := au.keys.LoadCA()
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return nil, nil, errors.Wrapf(ErrNotInitialized, "%s", err.Error())
		}
		return nil, nil, err
	}
	return material.Cert, material.Key, nil
}

// Issue generate a key pair and a leaf certificate for commonName, signed by
// the CA. The serial is allocated from the ledger and recorded as active
// before the certificate is signed, so no issued credential can be missing
// from the ledger.
func (au *Authority) Issue(ctx context.Context, commonName string) (*keystore.KeyMaterial, error) {
	if err := helper.ValidateVar(commonName, "required,hostname_rfc1123"); err != nil {
		return nil, errors.Wrap(err, "invalid common name")
	}

	caCert, caKey, err := au.Material()
	if err != nil {
		return nil, err
	}

	policy, err := au.Policy()
	if err != nil {
		return nil, err
	}

	key, err := x509x.GenerateKey(x509.SHA256WithRSA)
	if err != nil {
		return nil, errors.Wrapf(ErrKeyGeneration, "%s", err.Error())
	}

	serial, err := au.ledger.RecordIssuance(ctx, commonName)
	if err != nil {
		return nil, errors.Wrap(err, "fail to issue certificate")
	}

	subject := caSubject
	subject.CommonName = commonName

	template := &x509.Certificate{
		SerialNumber: x509x.SerialNumber(serial),
		Subject:      subject,
		NotBefore:    time.Now().UTC().Add(-time.Hour),
		NotAfter:     helper.AfterNow(0, 0, policy.DefaultDays),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	derBytes, err := au.signer.SignCertificate(ctx, template, caCert, key.Public(), caKey)
	if err != nil {
		return nil, errors.Wrap(err, "fail to issue certificate")
	}

	keyPEM, err := x509x.EncodePrivateKeyToPEM(key)
	if err != nil {
		return nil, errors.Wrap(err, "fail to issue certificate")
	}

	material := &keystore.KeyMaterial{
		Cert: x509x.EncodeCertificateToPEM(derBytes),
		Key:  keyPEM,
	}

	if err := au.keys.SaveIdentity(commonName, material); err != nil {
		return nil, errors.Wrap(err, "fail to issue certificate")
	}

	log.Infof("client certificate issued: cn=%s, serial=%d", commonName, serial)
	return material, nil
}
