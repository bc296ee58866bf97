// Package crl compiles the revocation ledger into a signed certificate
// revocation list and publishes it to the distribution points.
package crl

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"time"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"

	"vpnca/ca"
	"vpnca/config"
	"vpnca/ledger"
	"vpnca/pkg/helper/x509x"
)

var ErrSigning = errors.New("CRL signing failed")

// CRL a generated revocation list. RevokedSerials equals the ledger's revoked
// set at generation time; each successive CRL's set is a superset of the
// previous one since revocation is one way.
type CRL struct {
	Number         uint64
	ThisUpdate     time.Time
	NextUpdate     time.Time
	RevokedSerials []uint64
	DER            []byte
	PEM            []byte
}

// Issuer builds CRLs from ledger state, signed with the CA key
type Issuer struct {
	authority *ca.Authority
	ledger    *ledger.Ledger
	signer    ca.Signer
}

func NewIssuer(authority *ca.Authority, ldgr *ledger.Ledger, signer ca.Signer) *Issuer {
	return &Issuer{
		authority: authority,
		ledger:    ldgr,
		signer:    signer,
	}
}

// Generate build and sign a CRL reflecting the full revoked set of the ledger
// at call time
func (is *Issuer) Generate(ctx context.Context) (*CRL, error) {
	caCert, caKey, err := is.authority.Material()
	if err != nil {
		return nil, errors.Wrapf(ErrSigning, "%s", err.Error())
	}

	policy, err := is.authority.Policy()
	if err != nil {
		return nil, errors.Wrapf(ErrSigning, "%s", err.Error())
	}

	revoked, err := is.ledger.Revoked(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fail to generate CRL")
	}

	number, err := is.ledger.NextCRLNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fail to generate CRL")
	}

	window := config.CRLNextUpdateDuration()
	if policy.CRLDays > 0 {
		window = time.Hour * 24 * time.Duration(policy.CRLDays)
	}

	now := time.Now().UTC()
	template := &x509.RevocationList{
		Number:     x509x.SerialNumber(number),
		ThisUpdate: now,
		NextUpdate: now.Add(window),
		RevokedCertificates: fx.Map(revoked, func(e *ledger.Entry) pkix.RevokedCertificate {
			revokedAt := e.IssuedAt
			if e.RevokedAt != nil {
				revokedAt = *e.RevokedAt
			}
			return pkix.RevokedCertificate{
				SerialNumber:   x509x.SerialNumber(e.Serial),
				RevocationTime: revokedAt,
			}
		}),
	}

	derBytes, err := is.signer.SignCRL(ctx, template, caCert, caKey)
	if err != nil {
		return nil, errors.Wrapf(ErrSigning, "%s", err.Error())
	}

	log.Debugf("CRL generated: number=%d, revoked=%d", number, len(revoked))

	return &CRL{
		Number:         number,
		ThisUpdate:     template.ThisUpdate,
		NextUpdate:     template.NextUpdate,
		RevokedSerials: fx.Map(revoked, func(e *ledger.Entry) uint64 { return e.Serial }),
		DER:            derBytes,
		PEM:            x509x.EncodeCRLToPEM(derBytes),
	}, nil
}
