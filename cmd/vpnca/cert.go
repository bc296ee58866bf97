package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/whitekid/goxp/log"

	"vpnca/pkg/helper"
)

var certCmd *cobra.Command

func init() {
	certCmd = &cobra.Command{
		Use:   "cert",
		Short: "manage certificates",
	}
	rootCmd.AddCommand(certCmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "issue common-name",
		Short: "issue a client certificate signed by the private CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			if _, err := m.IssueClient(cmd.Context(), args[0]); err != nil {
				return err
			}

			log.Infof("issued certificate for %s", args[0])
			return nil
		},
	}

	certCmd.AddCommand(cmd)
}

func init() {
	var endpointID string

	cmd := &cobra.Command{
		Use:   "profile common-name",
		Short: "write the OpenVPN connection profile for an issued identity",
		Args:  cobra.ExactArgs(1),
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

			path, err := m.WriteProfile(cmd.Context(), endpoint, args[0])
			if err != nil {
				return err
			}

			log.Infof("profile written to %s", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "client vpn endpoint id")

	certCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list certificates known to the issuance service",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			certs, err := m.ListCertificates(cmd.Context())
			if err != nil {
				return err
			}

			return helper.WriteJSON(os.Stdout, certs)
		},
	}

	certCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "delete ref",
		Short: "delete a certificate from the issuance service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			return m.DeleteCertificate(cmd.Context(), args[0])
		},
	}

	certCmd.AddCommand(cmd)
}
