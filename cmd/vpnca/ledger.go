package main

import (
	"os"

	"github.com/spf13/cobra"

	"vpnca/ledger"
	"vpnca/pkg/helper"
)

var ledgerCmd *cobra.Command

func init() {
	ledgerCmd = &cobra.Command{
		Use:   "ledger",
		Short: "revocation ledger queries",
	}
	rootCmd.AddCommand(ledgerCmd)
}

func init() {
	var (
		commonName string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			entries, err := m.Ledger().List(cmd.Context(), ledger.ListOpt{
				CommonName: commonName,
				Status:     ledger.StrToStatus(status),
			})
			if err != nil {
				return err
			}

			return helper.WriteJSON(os.Stdout, entries)
		},
	}
	cmd.Flags().StringVar(&commonName, "cn", "", "filter by common name")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: active or revoked")

	ledgerCmd.AddCommand(cmd)
}
