package main

import (
	"os"

	"github.com/spf13/cobra"

	"vpnca/deploy"
	"vpnca/pkg/helper"
	"vpnca/reconcile"
)

func init() {
	req := &deploy.Request{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "provision the client VPN endpoint end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			record, err := m.Deployer().Deploy(cmd.Context(), req)
			if err != nil {
				return err
			}

			return helper.WriteJSON(os.Stdout, record)
		},
	}
	cmd.Flags().StringVar(&req.Domain, "domain", "", "domain name for the server certificate")
	cmd.Flags().StringVar(&req.VPCID, "vpc", "", "vpc id")
	cmd.Flags().StringVar(&req.SubnetID, "subnet", "", "subnet id to associate")
	cmd.Flags().BoolVar(&req.SplitTunnel, "split-tunnel", true, "route only VPC traffic through the tunnel")
	cmd.MarkFlagRequired("domain")
	cmd.MarkFlagRequired("vpc")
	cmd.MarkFlagRequired("subnet")

	rootCmd.AddCommand(cmd)
}

func init() {
	var (
		endpointID string
		full       bool
		vpcCIDR    string
		subnetID   string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "create missing authorization rules and routes on the endpoint",
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

			policy := &reconcile.Policy{
				Mode:     reconcile.ModeSplit,
				VPCCIDR:  vpcCIDR,
				SubnetID: subnetID,
			}
			if full {
				policy.Mode = reconcile.ModeFull
			}

			result, err := m.Reconcile(cmd.Context(), endpoint, policy)
			if err != nil {
				return err
			}

			return helper.WriteJSON(os.Stdout, result)
		},
	}
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "client vpn endpoint id")
	cmd.Flags().BoolVar(&full, "full", false, "full tunnel: authorize and route internet traffic")
	cmd.Flags().StringVar(&vpcCIDR, "vpc-cidr", "", "vpc cidr block")
	cmd.Flags().StringVar(&subnetID, "subnet", "", "subnet id for created routes")
	cmd.MarkFlagRequired("vpc-cidr")
	cmd.MarkFlagRequired("subnet")

	rootCmd.AddCommand(cmd)
}
