package main

import (
	"github.com/spf13/cobra"

	"vpnca"
)

func init() {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "start CRL distribution and ledger query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			return vpnca.Run(cmd.Context(), m)
		},
	}

	rootCmd.AddCommand(cmd)
}
