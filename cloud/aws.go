package cloud

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"
)

// remote calls are synchronous with no implicit client timeout; bound each one
const callTimeout = 30 * time.Second

const (
	errDuplicateAuthorizationRule = "InvalidClientVpnDuplicateAuthorizationRule"
	errDuplicateRoute             = "InvalidClientVpnDuplicateRoute"
)

// NewAWS connect collaborators to AWS: EC2 Client VPN as the control plane,
// ACM as the issuance service and S3 as the CRL mirror
func NewAWS(ctx context.Context, region string) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "fail to load AWS config")
	}

	return &Clients{
		ControlPlane: &awsControlPlane{ec2: ec2.NewFromConfig(cfg)},
		Issuance:     &awsIssuance{acm: acm.NewFromConfig(cfg)},
		Mirror:       &awsMirror{s3: s3.NewFromConfig(cfg), region: region},
	}, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}

type awsControlPlane struct {
	ec2 *ec2.Client
}

var _ ControlPlane = (*awsControlPlane)(nil)

func (cp *awsControlPlane) ListSessions(ctx context.Context, endpointID string) ([]*Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := cp.ec2.DescribeClientVpnConnections(ctx, &ec2.DescribeClientVpnConnectionsInput{
		ClientVpnEndpointId: aws.String(endpointID),
	})
	if err != nil {
		return nil, NewRemoteError("DescribeClientVpnConnections", err)
	}

	return fx.Map(out.Connections, func(conn ec2types.ClientVpnConnection) *Session {
		return &Session{
			ID:         aws.ToString(conn.ConnectionId),
			CommonName: aws.ToString(conn.CommonName),
			Active:     conn.Status != nil && conn.Status.Code == ec2types.ClientVpnConnectionStatusCodeActive,
		}
	}), nil
}

func (cp *awsControlPlane) TerminateSession(ctx context.Context, endpointID, sessionID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := cp.ec2.TerminateClientVpnConnections(ctx, &ec2.TerminateClientVpnConnectionsInput{
		ClientVpnEndpointId: aws.String(endpointID),
		ConnectionId:        aws.String(sessionID),
	})
	return NewRemoteError("TerminateClientVpnConnections", err)
}

func (cp *awsControlPlane) ImportCRL(ctx context.Context, endpointID string, crlPEM []byte) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := cp.ec2.ImportClientVpnClientCertificateRevocationList(ctx, &ec2.ImportClientVpnClientCertificateRevocationListInput{
		ClientVpnEndpointId:       aws.String(endpointID),
		CertificateRevocationList: aws.String(string(crlPEM)),
	})
	return NewRemoteError("ImportClientVpnClientCertificateRevocationList", err)
}

func (cp *awsControlPlane) ListEndpoints(ctx context.Context) ([]*Endpoint, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := cp.ec2.DescribeClientVpnEndpoints(ctx, &ec2.DescribeClientVpnEndpointsInput{})
	if err != nil {
		return nil, NewRemoteError("DescribeClientVpnEndpoints", err)
	}

	return fx.Map(out.ClientVpnEndpoints, func(ep ec2types.ClientVpnEndpoint) *Endpoint {
		return &Endpoint{
			ID:            aws.ToString(ep.ClientVpnEndpointId),
			ServerCertRef: aws.ToString(ep.ServerCertificateArn),
		}
	}), nil
}

func (cp *awsControlPlane) CreateEndpoint(ctx context.Context, req *CreateEndpointRequest) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := cp.ec2.CreateClientVpnEndpoint(ctx, &ec2.CreateClientVpnEndpointInput{
		ClientCidrBlock:      aws.String(req.ClientCIDR),
		ServerCertificateArn: aws.String(req.ServerCertRef),
		AuthenticationOptions: []ec2types.ClientVpnAuthenticationRequest{
			{
				Type: ec2types.ClientVpnAuthenticationTypeCertificateAuthentication,
				MutualAuthentication: &ec2types.CertificateAuthenticationRequest{
					ClientRootCertificateChainArn: aws.String(req.ClientCARef),
				},
			},
		},
		ConnectionLogOptions: &ec2types.ConnectionLogOptions{Enabled: aws.Bool(false)},
		DnsServers:           req.DNSServers,
	})
	if err != nil {
		return "", NewRemoteError("CreateClientVpnEndpoint", err)
	}

	return aws.ToString(out.ClientVpnEndpointId), nil
}

func (cp *awsControlPlane) AssociateSubnet(ctx context.Context, endpointID, subnetID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := cp.ec2.AssociateClientVpnTargetNetwork(ctx, &ec2.AssociateClientVpnTargetNetworkInput{
		ClientVpnEndpointId: aws.String(endpointID),
		SubnetId:            aws.String(subnetID),
	})
	return NewRemoteError("AssociateClientVpnTargetNetwork", err)
}

func (cp *awsControlPlane) ListRules(ctx context.Context, endpointID string) ([]*Rule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := cp.ec2.DescribeClientVpnAuthorizationRules(ctx, &ec2.DescribeClientVpnAuthorizationRulesInput{
		ClientVpnEndpointId: aws.String(endpointID),
	})
	if err != nil {
		return nil, NewRemoteError("DescribeClientVpnAuthorizationRules", err)
	}

	return fx.Map(out.AuthorizationRules, func(rule ec2types.AuthorizationRule) *Rule {
		var active bool
		if rule.Status != nil {
			switch rule.Status.Code {
			case ec2types.ClientVpnAuthorizationRuleStatusCodeActive, ec2types.ClientVpnAuthorizationRuleStatusCodeAuthorizing:
				active = true
			}
		}
		return &Rule{CIDR: aws.ToString(rule.DestinationCidr), Active: active}
	}), nil
}

func (cp *awsControlPlane) CreateRule(ctx context.Context, endpointID, cidr string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := cp.ec2.AuthorizeClientVpnIngress(ctx, &ec2.AuthorizeClientVpnIngressInput{
		ClientVpnEndpointId: aws.String(endpointID),
		TargetNetworkCidr:   aws.String(cidr),
		AuthorizeAllGroups:  aws.Bool(true),
	})
	if isAPIError(err, errDuplicateAuthorizationRule) {
		return errors.Wrapf(ErrDuplicate, "rule %s", cidr)
	}
	return NewRemoteError("AuthorizeClientVpnIngress", err)
}

func (cp *awsControlPlane) ListRoutes(ctx context.Context, endpointID string) ([]*Route, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := cp.ec2.DescribeClientVpnRoutes(ctx, &ec2.DescribeClientVpnRoutesInput{
		ClientVpnEndpointId: aws.String(endpointID),
	})
	if err != nil {
		return nil, NewRemoteError("DescribeClientVpnRoutes", err)
	}

	return fx.Map(out.Routes, func(route ec2types.ClientVpnRoute) *Route {
		var active bool
		if route.Status != nil {
			switch route.Status.Code {
			case ec2types.ClientVpnRouteStatusCodeActive, ec2types.ClientVpnRouteStatusCodeCreating:
				active = true
			}
		}
		return &Route{CIDR: aws.ToString(route.DestinationCidr), Active: active}
	}), nil
}

func (cp *awsControlPlane) CreateRoute(ctx context.Context, endpointID, cidr, subnetID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := cp.ec2.CreateClientVpnRoute(ctx, &ec2.CreateClientVpnRouteInput{
		ClientVpnEndpointId:  aws.String(endpointID),
		DestinationCidrBlock: aws.String(cidr),
		TargetVpcSubnetId:    aws.String(subnetID),
	})
	if isAPIError(err, errDuplicateRoute) {
		return errors.Wrapf(ErrDuplicate, "route %s", cidr)
	}
	return NewRemoteError("CreateClientVpnRoute", err)
}

func (cp *awsControlPlane) VPCCIDR(ctx context.Context, vpcID string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := cp.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		return "", NewRemoteError("DescribeVpcs", err)
	}

	if len(out.Vpcs) == 0 {
		return "", NewRemoteError("DescribeVpcs", errors.Errorf("vpc not found: %s", vpcID))
	}

	return aws.ToString(out.Vpcs[0].CidrBlock), nil
}

func (cp *awsControlPlane) ExportClientConfig(ctx context.Context, endpointID string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := cp.ec2.ExportClientVpnClientConfiguration(ctx, &ec2.ExportClientVpnClientConfigurationInput{
		ClientVpnEndpointId: aws.String(endpointID),
	})
	if err != nil {
		return "", NewRemoteError("ExportClientVpnClientConfiguration", err)
	}

	return aws.ToString(out.ClientConfiguration), nil
}

type awsIssuance struct {
	acm *acm.Client
}

var _ Issuance = (*awsIssuance)(nil)

func (is *awsIssuance) RequestCertificate(ctx context.Context, domain string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := is.acm.RequestCertificate(ctx, &acm.RequestCertificateInput{
		DomainName:       aws.String(domain),
		ValidationMethod: acmtypes.ValidationMethodDns,
	})
	if err != nil {
		return "", NewRemoteError("RequestCertificate", err)
	}

	return aws.ToString(out.CertificateArn), nil
}

func (is *awsIssuance) ImportCertificate(ctx context.Context, certPEM, keyPEM []byte) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := is.acm.ImportCertificate(ctx, &acm.ImportCertificateInput{
		Certificate: certPEM,
		PrivateKey:  keyPEM,
	})
	if err != nil {
		return "", NewRemoteError("ImportCertificate", err)
	}

	return aws.ToString(out.CertificateArn), nil
}

func (is *awsIssuance) ListCertificates(ctx context.Context) ([]*CertificateSummary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	out, err := is.acm.ListCertificates(ctx, &acm.ListCertificatesInput{})
	if err != nil {
		return nil, NewRemoteError("ListCertificates", err)
	}

	return fx.Map(out.CertificateSummaryList, func(cert acmtypes.CertificateSummary) *CertificateSummary {
		return &CertificateSummary{
			Ref:    aws.ToString(cert.CertificateArn),
			Domain: aws.ToString(cert.DomainName),
			Status: string(cert.Status),
		}
	}), nil
}

func (is *awsIssuance) DeleteCertificate(ctx context.Context, ref string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := is.acm.DeleteCertificate(ctx, &acm.DeleteCertificateInput{CertificateArn: aws.String(ref)})
	return NewRemoteError("DeleteCertificate", err)
}

type awsMirror struct {
	s3     *s3.Client
	region string
}

var _ Mirror = (*awsMirror)(nil)

func (m *awsMirror) EnsureBucket(ctx context.Context, bucket string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := m.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if m.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(m.region),
		}
	}

	_, err := m.s3.CreateBucket(ctx, input)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return NewRemoteError("CreateBucket", err)
	}

	log.Infof("mirror bucket created: %s", bucket)
	return nil
}

func (m *awsMirror) Put(ctx context.Context, bucket, key string, data []byte) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := m.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return NewRemoteError("PutObject", err)
}

func isAPIError(err error, code string) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == code
	}
	return false
}
