package reconcile

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"vpnca/cloud"
)

func newTestEndpoint(t *testing.T) (*Reconciler, *cloud.Clients, string) {
	clients, _ := cloud.NewMemory()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	endpointID, err := clients.ControlPlane.CreateEndpoint(ctx, &cloud.CreateEndpointRequest{})
	require.NoError(t, err)

	return New(clients.ControlPlane), clients, endpointID
}

func TestReconcileSplit(t *testing.T) {
	rc, clients, endpointID := newTestEndpoint(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := &Policy{Mode: ModeSplit, VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"}

	result, err := rc.Reconcile(ctx, endpointID, policy)
	require.NoError(t, err)
	require.Equal(t, &Result{RulesCreated: 1, RoutesCreated: 1}, result)

	rules, err := clients.ControlPlane.ListRules(ctx, endpointID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "10.0.0.0/16", rules[0].CIDR)

	// convergence: a second pass creates nothing
	result, err = rc.Reconcile(ctx, endpointID, policy)
	require.NoError(t, err)
	require.Equal(t, &Result{}, result)
}

func TestReconcileFull(t *testing.T) {
	rc, clients, endpointID := newTestEndpoint(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := &Policy{Mode: ModeFull, VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"}

	result, err := rc.Reconcile(ctx, endpointID, policy)
	require.NoError(t, err)
	require.Equal(t, &Result{RulesCreated: 2, RoutesCreated: 2}, result)

	routes, err := clients.ControlPlane.ListRoutes(ctx, endpointID)
	require.NoError(t, err)

	cidrs := []string{}
	for _, r := range routes {
		cidrs = append(cidrs, r.CIDR)
	}
	require.ElementsMatch(t, []string{"0.0.0.0/0", "10.0.0.0/16"}, cidrs)
}

func TestReconcilePartialState(t *testing.T) {
	rc, clients, endpointID := newTestEndpoint(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// rule already present from an earlier partial run, route missing
	require.NoError(t, clients.ControlPlane.CreateRule(ctx, endpointID, "10.0.0.0/16"))

	result, err := rc.Reconcile(ctx, endpointID, &Policy{Mode: ModeSplit, VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"})
	require.NoError(t, err)
	require.Equal(t, &Result{RulesCreated: 0, RoutesCreated: 1}, result)
}

// control plane that rejects every create as already present, as if a
// concurrent run won the race after the listing was taken
type racedControlPlane struct {
	cloud.ControlPlane
}

func (cp *racedControlPlane) CreateRule(ctx context.Context, endpointID, cidr string) error {
	return errors.Wrapf(cloud.ErrDuplicate, "rule %s", cidr)
}

func (cp *racedControlPlane) CreateRoute(ctx context.Context, endpointID, cidr, subnetID string) error {
	return errors.Wrapf(cloud.ErrDuplicate, "route %s", cidr)
}

func TestReconcileDuplicateAsSuccess(t *testing.T) {
	clients, _ := cloud.NewMemory()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpointID, err := clients.ControlPlane.CreateEndpoint(ctx, &cloud.CreateEndpointRequest{})
	require.NoError(t, err)

	rc := New(&racedControlPlane{ControlPlane: clients.ControlPlane})

	// every entry lost the race; the pass still converges without error,
	// counting nothing as created
	result, err := rc.Reconcile(ctx, endpointID, &Policy{Mode: ModeFull, VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"})
	require.NoError(t, err)
	require.Equal(t, &Result{}, result)
}

func TestReconcileWidenPolicy(t *testing.T) {
	rc, _, endpointID := newTestEndpoint(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	split := &Policy{Mode: ModeSplit, VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"}
	result, err := rc.Reconcile(ctx, endpointID, split)
	require.NoError(t, err)
	require.Equal(t, &Result{RulesCreated: 1, RoutesCreated: 1}, result)

	// widening to full tunnel only adds the internet entries; the VPC
	// entries are left alone
	full := &Policy{Mode: ModeFull, VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"}
	result, err = rc.Reconcile(ctx, endpointID, full)
	require.NoError(t, err)
	require.Equal(t, &Result{RulesCreated: 1, RoutesCreated: 1}, result)
}

func TestReconcileInvalidPolicy(t *testing.T) {
	rc, _, endpointID := newTestEndpoint(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tests := [...]struct {
		name   string
		policy *Policy
	}{
		{`missing mode`, &Policy{VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"}},
		{`bad mode`, &Policy{Mode: "both", VPCCIDR: "10.0.0.0/16", SubnetID: "subnet-1"}},
		{`bad cidr`, &Policy{Mode: ModeSplit, VPCCIDR: "10.0.0.0", SubnetID: "subnet-1"}},
		{`missing subnet`, &Policy{Mode: ModeSplit, VPCCIDR: "10.0.0.0/16"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rc.Reconcile(ctx, endpointID, tt.policy)
			require.Error(t, err)
		})
	}
}
