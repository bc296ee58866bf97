package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/whitekid/goxp/log"

	"vpnca/ban"
	"vpnca/pkg/helper"
)

var userCmd *cobra.Command

func init() {
	userCmd = &cobra.Command{
		Use:   "user",
		Short: "manage VPN user access",
	}
	rootCmd.AddCommand(userCmd)
}

func init() {
	var endpointID string

	cmd := &cobra.Command{
		Use:   "add username",
		Short: "issue a client certificate and write the connection profile",
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

			path, err := m.AddUser(cmd.Context(), endpoint, args[0])
			if err != nil {
				return err
			}

			log.Infof("profile written to %s", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "client vpn endpoint id")

	userCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "remove username",
		Short: "remove local key material and profile; the ledger keeps the record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			removed, err := m.RemoveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, path := range removed {
				log.Infof("removed %s", path)
			}
			return nil
		},
	}

	userCmd.AddCommand(cmd)
}

func init() {
	var endpointID string

	cmd := &cobra.Command{
		Use:   "revoke username",
		Short: "revoke the user's certificate and publish a fresh CRL",
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

			serial, err := m.RevokeUser(cmd.Context(), endpoint, args[0])
			if err != nil {
				return err
			}

			log.Infof("revoked %s, serial %d", args[0], serial)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "client vpn endpoint id")

	userCmd.AddCommand(cmd)
}

func init() {
	var endpointID string

	cmd := &cobra.Command{
		Use:   "ban username",
		Short: "revoke, publish the CRL and disconnect active sessions",
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

			result, err := m.BanUser(cmd.Context(), endpoint, args[0])
			if result != nil {
				warning := ""
				if result.Warning != nil {
					warning = result.Warning.Error()
				}

				if werr := helper.WriteJSON(os.Stdout, &struct {
					CommonName   string
					Serial       uint64
					State        ban.State
					FailedStage  ban.Stage `json:",omitempty"`
					Disconnected int
					Warning      string `json:",omitempty"`
				}{
					CommonName:   result.CommonName,
					Serial:       result.Serial,
					State:        result.State,
					FailedStage:  result.FailedStage,
					Disconnected: result.Disconnected,
					Warning:      warning,
				}); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "client vpn endpoint id")

	userCmd.AddCommand(cmd)
}

func init() {
	var endpointID string

	cmd := &cobra.Command{
		Use:   "disconnect username",
		Short: "terminate the user's active VPN sessions",
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

			n, err := m.Disconnect(cmd.Context(), endpoint, args[0])
			if err != nil {
				return err
			}

			log.Infof("disconnected %d sessions", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "client vpn endpoint id")

	userCmd.AddCommand(cmd)
}
