// Package reconcile converges the endpoint's authorization rules and routes
// onto a declared tunneling policy. It only creates what is missing; entries
// already present are never deleted or duplicated, and a concurrent duplicate
// reported by the remote surface counts as success.
package reconcile

import (
	"context"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"

	"vpnca/cloud"
	"vpnca/pkg/helper"
)

const internetCIDR = "0.0.0.0/0"

// Mode tunneling mode
type Mode string

const (
	// ModeSplit only VPC traffic traverses the tunnel
	ModeSplit Mode = "split"
	// ModeFull all client traffic traverses the tunnel
	ModeFull Mode = "full"
)

// Policy desired connectivity state for an endpoint
type Policy struct {
	Mode     Mode   `validate:"required,oneof=split full"`
	VPCCIDR  string `validate:"required,cidrv4"`
	SubnetID string `validate:"required"`
}

// cidrs the permit/route set the policy implies, in creation order
func (p *Policy) cidrs() []string {
	if p.Mode == ModeFull {
		return []string{internetCIDR, p.VPCCIDR}
	}
	return []string{p.VPCCIDR}
}

// Result entries created by a reconciliation pass
type Result struct {
	RulesCreated  int
	RoutesCreated int
}

type Reconciler struct {
	controlPlane cloud.ControlPlane
}

func New(controlPlane cloud.ControlPlane) *Reconciler {
	return &Reconciler{controlPlane: controlPlane}
}

// Reconcile create the missing authorization rules and routes for policy.
// Re-running with unchanged policy and remote state creates nothing.
func (rc *Reconciler) Reconcile(ctx context.Context, endpointID string, policy *Policy) (*Result, error) {
	if err := helper.ValidateStruct(policy); err != nil {
		return nil, errors.Wrap(err, "invalid policy")
	}

	rules, err := rc.controlPlane.ListRules(ctx, endpointID)
	if err != nil {
		return nil, errors.Wrap(err, "fail to reconcile")
	}

	routes, err := rc.controlPlane.ListRoutes(ctx, endpointID)
	if err != nil {
		return nil, errors.Wrap(err, "fail to reconcile")
	}

	ruleSet := map[string]bool{}
	for _, r := range fx.Filter(rules, func(r *cloud.Rule) bool { return r.Active }) {
		ruleSet[r.CIDR] = true
	}

	routeSet := map[string]bool{}
	for _, r := range fx.Filter(routes, func(r *cloud.Route) bool { return r.Active }) {
		routeSet[r.CIDR] = true
	}

	result := &Result{}
	for _, cidr := range policy.cidrs() {
		if !ruleSet[cidr] {
			if err := rc.controlPlane.CreateRule(ctx, endpointID, cidr); err != nil {
				if errors.Is(err, cloud.ErrDuplicate) {
					// race with a prior partial run
					log.Debugf("rule already authorized: %s", cidr)
				} else {
					return result, errors.Wrapf(err, "fail to authorize %s", cidr)
				}
			} else {
				result.RulesCreated++
				log.Infof("access authorized: %s", cidr)
			}
		}

		if !routeSet[cidr] {
			if err := rc.controlPlane.CreateRoute(ctx, endpointID, cidr, policy.SubnetID); err != nil {
				if errors.Is(err, cloud.ErrDuplicate) {
					log.Debugf("route already exists: %s", cidr)
				} else {
					return result, errors.Wrapf(err, "fail to create route %s", cidr)
				}
			} else {
				result.RoutesCreated++
				log.Infof("route added: %s", cidr)
			}
		}
	}

	return result, nil
}
