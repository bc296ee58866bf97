// Package manager wires the CA subsystem together and exposes the operations
// the CLI and the HTTP surface call.
package manager

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"vpnca/ban"
	"vpnca/ca"
	"vpnca/cloud"
	"vpnca/config"
	"vpnca/crl"
	"vpnca/deploy"
	"vpnca/enforcer"
	"vpnca/keystore"
	"vpnca/ledger"
	"vpnca/reconcile"
)

// fallback when no deployment record exists, matching the default VPC layout
const fallbackVPCCIDR = "10.0.0.0/16"

type Manager struct {
	keys      *keystore.KeyStore
	ledger    *ledger.Ledger
	authority *ca.Authority
	issuer    *crl.Issuer
	publisher *crl.Publisher
	enforcer  *enforcer.Enforcer
	protocol  *ban.Protocol
	clients   *cloud.Clients
	profiles  *deploy.ProfileWriter
	deployer  *deploy.Deployer
}

// New assemble the subsystem from process configuration
func New(clients *cloud.Clients) (*Manager, error) {
	keys := keystore.New(config.CertsDir())

	ldgr, err := ledger.New(config.LedgerDB())
	if err != nil {
		return nil, err
	}

	signer := ca.NativeSigner()
	authority := ca.New(keys, ldgr, signer)
	issuer := crl.NewIssuer(authority, ldgr, signer)
	publisher := crl.NewPublisher(clients.Mirror, clients.ControlPlane, config.MirrorBucket(), config.MirrorKey())
	enf := enforcer.New(clients.ControlPlane)

	return &Manager{
		keys:      keys,
		ledger:    ldgr,
		authority: authority,
		issuer:    issuer,
		publisher: publisher,
		enforcer:  enf,
		protocol:  ban.New(ldgr, issuer, publisher, enf),
		clients:   clients,
		profiles:  deploy.NewProfileWriter(keys, clients.ControlPlane, config.ProfileDir()),
		deployer:  deploy.New(authority, clients, config.Region(), config.DeploymentInfo()),
	}, nil
}

func (m *Manager) Close() error { return m.ledger.Close() }

func (m *Manager) Ledger() *ledger.Ledger     { return m.ledger }
func (m *Manager) Authority() *ca.Authority   { return m.authority }
func (m *Manager) Issuer() *crl.Issuer        { return m.issuer }
func (m *Manager) Publisher() *crl.Publisher  { return m.publisher }
func (m *Manager) Deployer() *deploy.Deployer { return m.deployer }

// EndpointID resolve the endpoint id from the explicit flag value or the
// persisted deployment record
func (m *Manager) EndpointID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	record, err := deploy.LoadRecord(config.DeploymentInfo())
	if err != nil {
		return "", errors.Wrap(err, "endpoint id required: pass --endpoint or deploy first")
	}
	return record.EndpointID, nil
}

func (m *Manager) vpcCIDR() string {
	record, err := deploy.LoadRecord(config.DeploymentInfo())
	if err != nil {
		return fallbackVPCCIDR
	}
	return record.VPCCIDR
}

// IssueClient initialize the CA when needed and issue a client certificate
func (m *Manager) IssueClient(ctx context.Context, commonName string) (*keystore.KeyMaterial, error) {
	if err := m.authority.Initialize(ctx); err != nil {
		return nil, err
	}

	return m.authority.Issue(ctx, commonName)
}

// WriteProfile generate the connection profile for an issued identity
func (m *Manager) WriteProfile(ctx context.Context, endpointID, commonName string) (string, error) {
	return m.profiles.Write(ctx, endpointID, commonName, m.vpcCIDR())
}

// AddUser issue a client certificate and generate its connection profile
func (m *Manager) AddUser(ctx context.Context, endpointID, commonName string) (string, error) {
	if _, err := m.IssueClient(ctx, commonName); err != nil {
		return "", err
	}

	return m.WriteProfile(ctx, endpointID, commonName)
}

// RemoveUser delete local credential and profile files only. The ledger entry
// and any published CRL state are deliberately untouched; use RevokeUser or
// BanUser to withdraw trust.
func (m *Manager) RemoveUser(ctx context.Context, commonName string) ([]string, error) {
	removed, err := m.keys.RemoveIdentity(commonName)
	if err != nil {
		return removed, err
	}

	profile := filepath.Join(config.ProfileDir(), commonName+"-vpn.ovpn")
	if _, err := os.Stat(profile); err == nil {
		if err := os.Remove(profile); err != nil {
			return removed, errors.Wrapf(err, "fail to remove user %s", commonName)
		}
		removed = append(removed, profile)
	}

	if len(removed) == 0 {
		log.Warnf("no files found for user: %s", commonName)
	}

	return removed, nil
}

// RevokeUser revoke the identity's certificate, then regenerate and publish
// the CRL
func (m *Manager) RevokeUser(ctx context.Context, endpointID, commonName string) (uint64, error) {
	serial, err := m.ledger.Revoke(ctx, commonName)
	if err != nil {
		return 0, err
	}

	generated, err := m.issuer.Generate(ctx)
	if err != nil {
		return serial, err
	}

	if err := m.publisher.Publish(ctx, endpointID, generated); err != nil {
		return serial, err
	}

	return serial, nil
}

// BanUser run the full ban protocol: revoke, publish, disconnect
func (m *Manager) BanUser(ctx context.Context, endpointID, commonName string) (*ban.Result, error) {
	return m.protocol.Run(ctx, endpointID, commonName)
}

// Disconnect force-terminate the identity's live sessions without revoking
func (m *Manager) Disconnect(ctx context.Context, endpointID, commonName string) (int, error) {
	return m.enforcer.DisconnectAll(ctx, endpointID, commonName)
}

// Reconcile converge endpoint access rules and routes onto policy
func (m *Manager) Reconcile(ctx context.Context, endpointID string, policy *reconcile.Policy) (*reconcile.Result, error) {
	return reconcile.New(m.clients.ControlPlane).Reconcile(ctx, endpointID, policy)
}

// ListCertificates list certificates held by the issuance service
func (m *Manager) ListCertificates(ctx context.Context) ([]*cloud.CertificateSummary, error) {
	return m.clients.Issuance.ListCertificates(ctx)
}

// DeleteCertificate delete a certificate from the issuance service
func (m *Manager) DeleteCertificate(ctx context.Context, ref string) error {
	return m.clients.Issuance.DeleteCertificate(ctx, ref)
}
