package vpnca

import (
	"context"

	"vpnca/api"
	"vpnca/config"
	"vpnca/manager"
	"vpnca/pkg/helper"
)

// Run start the HTTP surface: CRL distribution point and ledger listings
func Run(ctx context.Context, m *manager.Manager) error {
	e := helper.NewEcho()
	api.Route(e, m)

	return helper.StartEcho(ctx, e, config.ListenAddr())
}
