// Package x509x wraps crypto/x509 primitives used by the certificate authority:
// key generation, PEM codecs and CRL parsing.
package x509x

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"

	"github.com/pkg/errors"
)

const (
	CertificatePEMBlockType     = "CERTIFICATE"
	CrlPEMBlockType             = "X509 CRL"
	RsaPrivateKeyPEMBlockType   = "RSA PRIVATE KEY"
	EcdsaPrivateKeyPEMBlockType = "EC PRIVATE KEY"

	pemPrefix = "-----BEGIN "
)

var (
	pemPrefixCertificate     = []byte(pemPrefix + CertificatePEMBlockType)
	pemPrefixCrl             = []byte(pemPrefix + CrlPEMBlockType)
	pemPrefixRsaPrivateKey   = []byte(pemPrefix + RsaPrivateKeyPEMBlockType)
	pemPrefixEcdsaPrivateKey = []byte(pemPrefix + EcdsaPrivateKeyPEMBlockType)
)

var randReader = rand.Reader

// PrivateKey private key that can sign
type PrivateKey interface {
	crypto.PrivateKey
	crypto.Signer
}

// GenerateKey generate private and public key pair
func GenerateKey(algorithm x509.SignatureAlgorithm) (privateKey PrivateKey, err error) {
	switch algorithm {
	case x509.ECDSAWithSHA256:
		privateKey, err = ecdsa.GenerateKey(elliptic.P256(), randReader)
	case x509.ECDSAWithSHA384:
		privateKey, err = ecdsa.GenerateKey(elliptic.P384(), randReader)
	case x509.SHA256WithRSA:
		privateKey, err = rsa.GenerateKey(randReader, 2048)
	case x509.SHA512WithRSA:
		privateKey, err = rsa.GenerateKey(randReader, 4096)
	default:
		return nil, errors.Errorf("unknown algorithm: %s", algorithm)
	}

	if err != nil {
		return nil, err
	}

	return
}

// ParseCertificate parse x509 certificate PEM block or DER bytes
func ParseCertificate(certBytes []byte) (*x509.Certificate, error) {
	if bytes.HasPrefix(certBytes, pemPrefixCertificate) {
		p, _ := pem.Decode(certBytes)
		if p == nil {
			return nil, errors.New("invalid PEM")
		}

		certBytes = p.Bytes
	}

	return x509.ParseCertificate(certBytes)
}

// ParseCRL parse x509 revocation list PEM block or DER bytes
func ParseCRL(crlBytes []byte) (*x509.RevocationList, error) {
	if bytes.HasPrefix(crlBytes, pemPrefixCrl) {
		p, _ := pem.Decode(crlBytes)
		if p == nil {
			return nil, errors.New("invalid PEM")
		}

		crlBytes = p.Bytes
	}

	return x509.ParseRevocationList(crlBytes)
}

// ParsePrivateKey parse pem formatted private key
func ParsePrivateKey(keyPemBytes []byte) (PrivateKey, error) {
	p, _ := pem.Decode(keyPemBytes)
	if p == nil {
		return nil, errors.New("invalid PEM")
	}

	var key PrivateKey
	var err error
	switch {
	case bytes.HasPrefix(keyPemBytes, pemPrefixRsaPrivateKey):
		key, err = x509.ParsePKCS1PrivateKey(p.Bytes)

	case bytes.HasPrefix(keyPemBytes, pemPrefixEcdsaPrivateKey):
		key, err = x509.ParseECPrivateKey(p.Bytes)

	default:
		return nil, errors.New("unknown pem type")
	}

	if err != nil {
		return nil, errors.Wrap(err, "fail to parse private key")
	}
	return key, nil
}

func EncodeCertificateToPEM(derBytes []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  CertificatePEMBlockType,
		Bytes: derBytes,
	})
}

func EncodeCRLToPEM(derBytes []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  CrlPEMBlockType,
		Bytes: derBytes,
	})
}

func EncodePrivateKeyToPEM(privateKey PrivateKey) ([]byte, error) {
	var pemType string
	var keyBytes []byte

	switch key := privateKey.(type) {
	case *rsa.PrivateKey:
		pemType = RsaPrivateKeyPEMBlockType
		keyBytes = x509.MarshalPKCS1PrivateKey(key)
	case *ecdsa.PrivateKey:
		pemType = EcdsaPrivateKeyPEMBlockType
		derBytes, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "fail to encode private key")
		}
		keyBytes = derBytes
	default:
		return nil, errors.Errorf("unsupported private key: %T", privateKey)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  pemType,
		Bytes: keyBytes,
	}), nil
}

// SerialNumber ledger serials are plain unsigned integers
func SerialNumber(serial uint64) *big.Int { return new(big.Int).SetUint64(serial) }
