package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vpnca/cloud"
	"vpnca/config"
	"vpnca/manager"
)

var rootCmd = &cobra.Command{
	Use:   "vpnca",
	Short: "VPN certificate authority and revocation service",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags()
}

func initConfig() {
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// log.Warn(err)
	}
}

func newManager(ctx context.Context) (*manager.Manager, error) {
	clients, err := cloud.NewAWS(ctx, config.Region())
	if err != nil {
		return nil, err
	}

	return manager.New(clients)
}
