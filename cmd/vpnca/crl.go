package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/whitekid/goxp/log"

	"vpnca/pkg/helper"
)

var crlCmd *cobra.Command

func init() {
	crlCmd = &cobra.Command{
		Use:   "crl",
		Short: "certificate revocation list operations",
	}
	rootCmd.AddCommand(crlCmd)
}

func init() {
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "generate a CRL from the revocation ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			crl, err := m.Issuer().Generate(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(crl.PEM)
				return err
			}
			return helper.WriteFile(output, crl.PEM, 0644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file")

	crlCmd.AddCommand(cmd)
}

func init() {
	var endpointID string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "generate the CRL, mirror it to storage and import it to the endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			endpoint, err := m.EndpointID(endpointID)
			if err != nil {
				return err
			}

			crl, err := m.Issuer().Generate(cmd.Context())
			if err != nil {
				return err
			}

			if err := m.Publisher().Publish(cmd.Context(), endpoint, crl); err != nil {
				return err
			}

			log.Infof("published CRL number %d with %d revoked serials", crl.Number, len(crl.RevokedSerials))
			return nil
		},
	}
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "client vpn endpoint id")

	crlCmd.AddCommand(cmd)
}
