package ca

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"

	"github.com/pkg/errors"

	"vpnca/pkg/helper/x509x"
)

// Signer signs certificates and revocation lists with an issuer key. Kept as a
// capability so signing never shells out to an external tool and tests can
// substitute a failing implementation.
type Signer interface {
	// SignCertificate returns the signed certificate as DER
	SignCertificate(ctx context.Context, template, parent *x509.Certificate, pub crypto.PublicKey, signerKey x509x.PrivateKey) ([]byte, error)

	// SignCRL returns the signed revocation list as DER
	SignCRL(ctx context.Context, template *x509.RevocationList, issuer *x509.Certificate, signerKey x509x.PrivateKey) ([]byte, error)
}

// NativeSigner signer on the stdlib crypto implementation
func NativeSigner() Signer { return &nativeSigner{} }

type nativeSigner struct{}

var _ Signer = (*nativeSigner)(nil)

func (na *nativeSigner) SignCertificate(ctx context.Context, template, parent *x509.Certificate, pub crypto.PublicKey, signerKey x509x.PrivateKey) ([]byte, error) {
	derBytes, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signerKey)
	if err != nil {
		return nil, errors.Wrap(err, "fail to sign certificate")
	}

	return derBytes, nil
}

func (na *nativeSigner) SignCRL(ctx context.Context, template *x509.RevocationList, issuer *x509.Certificate, signerKey x509x.PrivateKey) ([]byte, error) {
	derBytes, err := x509.CreateRevocationList(rand.Reader, template, issuer, signerKey)
	if err != nil {
		return nil, errors.Wrap(err, "fail to sign CRL")
	}

	return derBytes, nil
}
