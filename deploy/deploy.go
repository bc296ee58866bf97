// Package deploy drives the one-shot deployment workflow: server certificate,
// CA bootstrap, CA upload, endpoint creation and access policy reconciliation.
// Every step reuses existing remote state when present, so a re-run converges
// instead of duplicating.
package deploy

import (
	"context"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"vpnca/ca"
	"vpnca/cloud"
	"vpnca/pkg/helper"
	"vpnca/reconcile"
)

const (
	clientCIDR   = "192.168.0.0/16"
	caDomainName = "VPN-CA"
)

var defaultDNSServers = []string{"8.8.8.8", "8.8.4.4"}

// Request deployment parameters
type Request struct {
	Domain      string `validate:"required,fqdn"`
	VPCID       string `validate:"required"`
	SubnetID    string `validate:"required"`
	SplitTunnel bool
}

type Deployer struct {
	authority  *ca.Authority
	clients    *cloud.Clients
	reconciler *reconcile.Reconciler
	region     string
	recordPath string
}

func New(authority *ca.Authority, clients *cloud.Clients, region, recordPath string) *Deployer {
	return &Deployer{
		authority:  authority,
		clients:    clients,
		reconciler: reconcile.New(clients.ControlPlane),
		region:     region,
		recordPath: recordPath,
	}
}

// Deploy run the full deployment and persist the resulting record
func (d *Deployer) Deploy(ctx context.Context, req *Request) (*Record, error) {
	if err := helper.ValidateStruct(req); err != nil {
		return nil, errors.Wrap(err, "invalid deployment request")
	}

	record := newRecord()
	record.VPCID, record.SubnetID, record.Region = req.VPCID, req.SubnetID, d.region

	serverCertRef, err := d.ensureServerCertificate(ctx, req.Domain)
	if err != nil {
		return nil, err
	}
	record.ServerCertRef = serverCertRef

	if err := d.authority.Initialize(ctx); err != nil {
		return nil, err
	}

	caRef, err := d.ensureClientCA(ctx)
	if err != nil {
		return nil, err
	}
	record.ClientCARef = caRef

	cidr, err := d.clients.ControlPlane.VPCCIDR(ctx, req.VPCID)
	if err != nil {
		return nil, err
	}
	record.VPCCIDR = cidr

	endpointID, err := d.ensureEndpoint(ctx, serverCertRef, caRef, req.SubnetID)
	if err != nil {
		return nil, err
	}
	record.EndpointID = endpointID

	mode := reconcile.ModeSplit
	if !req.SplitTunnel {
		mode = reconcile.ModeFull
	}

	if _, err := d.reconciler.Reconcile(ctx, endpointID, &reconcile.Policy{
		Mode:     mode,
		VPCCIDR:  cidr,
		SubnetID: req.SubnetID,
	}); err != nil {
		return nil, err
	}

	if err := SaveRecord(d.recordPath, record); err != nil {
		return nil, err
	}

	log.Infof("deployment completed: endpoint=%s", endpointID)
	return record, nil
}

// ensureServerCertificate reuse an issued or pending certificate for domain,
// else request a new one with DNS validation
func (d *Deployer) ensureServerCertificate(ctx context.Context, domain string) (string, error) {
	certs, err := d.clients.Issuance.ListCertificates(ctx)
	if err != nil {
		return "", err
	}

	for _, cert := range certs {
		if cert.Domain == domain && (cert.Status == "ISSUED" || cert.Status == "PENDING_VALIDATION") {
			log.Infof("using existing server certificate: %s", cert.Ref)
			return cert.Ref, nil
		}
	}

	ref, err := d.clients.Issuance.RequestCertificate(ctx, domain)
	if err != nil {
		return "", err
	}

	log.Infof("server certificate requested: %s", ref)
	log.Warnf("validate the certificate with the issuance service before clients can connect")
	return ref, nil
}

// ensureClientCA upload the CA certificate and key to the issuance service,
// reusing an already imported copy
func (d *Deployer) ensureClientCA(ctx context.Context) (string, error) {
	certs, err := d.clients.Issuance.ListCertificates(ctx)
	if err != nil {
		return "", err
	}

	for _, cert := range certs {
		if cert.Domain == caDomainName {
			log.Infof("using existing client CA certificate: %s", cert.Ref)
			return cert.Ref, nil
		}
	}

	certPEM, keyPEM, err := d.authority.MaterialPEM()
	if err != nil {
		return "", err
	}

	ref, err := d.clients.Issuance.ImportCertificate(ctx, certPEM, keyPEM)
	if err != nil {
		return "", err
	}

	log.Infof("client CA certificate uploaded: %s", ref)
	return ref, nil
}

// ensureEndpoint reuse the endpoint bound to serverCertRef, else create one
// and associate the target subnet
func (d *Deployer) ensureEndpoint(ctx context.Context, serverCertRef, caRef, subnetID string) (string, error) {
	endpoints, err := d.clients.ControlPlane.ListEndpoints(ctx)
	if err != nil {
		return "", err
	}

	for _, ep := range endpoints {
		if ep.ServerCertRef == serverCertRef {
			log.Infof("using existing VPN endpoint: %s", ep.ID)
			return ep.ID, nil
		}
	}

	endpointID, err := d.clients.ControlPlane.CreateEndpoint(ctx, &cloud.CreateEndpointRequest{
		ClientCIDR:    clientCIDR,
		ServerCertRef: serverCertRef,
		ClientCARef:   caRef,
		DNSServers:    defaultDNSServers,
	})
	if err != nil {
		return "", err
	}

	if err := d.clients.ControlPlane.AssociateSubnet(ctx, endpointID, subnetID); err != nil {
		return "", err
	}

	log.Infof("VPN endpoint created: %s", endpointID)
	return endpointID, nil
}
