package x509x

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	tests := [...]struct {
		name      string
		algorithm x509.SignatureAlgorithm
		wantErr   bool
	}{
		{`rsa 2048`, x509.SHA256WithRSA, false},
		{`rsa 4096`, x509.SHA512WithRSA, false},
		{`ecdsa p256`, x509.ECDSAWithSHA256, false},
		{`ecdsa p384`, x509.ECDSAWithSHA384, false},
		{`unsupported`, x509.DSAWithSHA256, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GenerateKey(tt.algorithm)
			require.Truef(t, (err != nil) == tt.wantErr, `GenerateKey() failed: error = %+v, wantErr = %v`, err, tt.wantErr)
			if tt.wantErr {
				return
			}

			switch tt.algorithm {
			case x509.SHA256WithRSA, x509.SHA512WithRSA:
				require.IsType(t, &rsa.PrivateKey{}, key)
			default:
				require.IsType(t, &ecdsa.PrivateKey{}, key)
			}
		})
	}
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	key, err := GenerateKey(x509.ECDSAWithSHA256)
	require.NoError(t, err)

	pemBytes, err := EncodePrivateKeyToPEM(key)
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(pemBytes)
	require.NoError(t, err)
	require.Equal(t, key.Public(), parsed.Public())
}

func TestParseCertificate(t *testing.T) {
	key, err := GenerateKey(x509.ECDSAWithSHA256)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          SerialNumber(7),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}

	derBytes, err := x509.CreateCertificate(randReader, template, template, key.Public(), key)
	require.NoError(t, err)

	cert, err := ParseCertificate(EncodeCertificateToPEM(derBytes))
	require.NoError(t, err)
	require.Equal(t, "test-ca", cert.Subject.CommonName)
	require.Equal(t, uint64(7), cert.SerialNumber.Uint64())

	_, err = ParseCertificate([]byte("not a pem"))
	require.Error(t, err)
}

func TestParseCRL(t *testing.T) {
	key, err := GenerateKey(x509.ECDSAWithSHA256)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          SerialNumber(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	derBytes, err := x509.CreateCertificate(randReader, template, template, key.Public(), key)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(derBytes)
	require.NoError(t, err)

	crlDER, err := x509.CreateRevocationList(randReader, &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now(),
		NextUpdate: time.Now().Add(time.Hour),
	}, caCert, key)
	require.NoError(t, err)

	crl, err := ParseCRL(EncodeCRLToPEM(crlDER))
	require.NoError(t, err)
	require.NoError(t, crl.CheckSignatureFrom(caCert))
}

func TestSerialNumber(t *testing.T) {
	require.Equal(t, uint64(0), SerialNumber(0).Uint64())
	require.Equal(t, uint64(1<<63), SerialNumber(1<<63).Uint64())
}
