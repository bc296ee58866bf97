package main

import (
	"context"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vpnca/pkg/helper"
	"vpnca/pkg/helper/x509x"
)

var x509cmd *cobra.Command

func init() {
	x509cmd = &cobra.Command{
		Use:   "x509",
		Short: "x509 utility commands",
	}
	rootCmd.AddCommand(x509cmd)
}

func init() {
	x509cmd.AddCommand(&cobra.Command{
		Use:   "cert-info cert...",
		Short: "show certificate informations",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, filename := range args {
				if err := certInfo(cmd.Context(), filename); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// certInfo show certificate information
// openssl x509 -text -in <filename>
func certInfo(ctx context.Context, filename string) error {
	pemBytes, err := helper.ReadFile(filename)
	if err != nil {
		return err
	}

	cert, err := x509x.ParseCertificate(pemBytes)
	if err != nil {
		return err
	}

	return helper.WriteJSON(os.Stdout, &struct {
		CommonName         string `json:",omitempty"`
		Organization       string `json:",omitempty"`
		Country            string `json:",omitempty"`
		Province           string `json:",omitempty"`
		Locality           string `json:",omitempty"`
		SerialNumber       string `json:",omitempty"`
		PublicKeyAlgorithm string `json:",omitempty"`
		NotBefore          time.Time
		NotAfter           time.Time
		IsCA               bool
		IssuerCommonName   string
	}{
		CommonName:         cert.Subject.CommonName,
		Organization:       strings.Join(cert.Subject.Organization, ", "),
		Country:            strings.Join(cert.Subject.Country, ", "),
		Province:           strings.Join(cert.Subject.Province, ", "),
		Locality:           strings.Join(cert.Subject.Locality, ", "),
		SerialNumber:       cert.SerialNumber.String(),
		PublicKeyAlgorithm: cert.PublicKeyAlgorithm.String(),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		IsCA:               cert.IsCA,
		IssuerCommonName:   cert.Issuer.CommonName,
	})
}

func init() {
	x509cmd.AddCommand(&cobra.Command{
		Use:   "crl-info crl...",
		Short: "show CRL informations",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, filename := range args {
				if err := crlInfo(cmd.Context(), filename); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func crlInfo(ctx context.Context, filename string) error {
	crlBytes, err := helper.ReadFile(filename)
	if err != nil {
		return err
	}

	crl, err := x509x.ParseCRL(crlBytes)
	if err != nil {
		return err
	}

	serials := make([]string, 0, len(crl.RevokedCertificates))
	for _, revoked := range crl.RevokedCertificates {
		serials = append(serials, revoked.SerialNumber.String())
	}

	return helper.WriteJSON(os.Stdout, &struct {
		IssuerCommonName   string
		SignatureAlgorithm string
		Number             *big.Int
		ThisUpdate         time.Time
		NextUpdate         time.Time
		RevokedSerials     []string
	}{
		IssuerCommonName:   crl.Issuer.CommonName,
		SignatureAlgorithm: crl.SignatureAlgorithm.String(),
		Number:             crl.Number,
		ThisUpdate:         crl.ThisUpdate,
		NextUpdate:         crl.NextUpdate,
		RevokedSerials:     serials,
	})
}
