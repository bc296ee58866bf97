package deploy

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"vpnca/cloud"
	"vpnca/keystore"
)

// ProfileWriter renders client connection profiles with embedded credentials
// and split tunnel directives.
type ProfileWriter struct {
	keys         *keystore.KeyStore
	controlPlane cloud.ControlPlane
	dir          string
}

func NewProfileWriter(keys *keystore.KeyStore, controlPlane cloud.ControlPlane, dir string) *ProfileWriter {
	return &ProfileWriter{
		keys:         keys,
		controlPlane: controlPlane,
		dir:          dir,
	}
}

// Write export the endpoint's base configuration, append routing directives
// for vpcCIDR and the identity's certificate and key, and write the profile
// file. Returns the written path.
func (pw *ProfileWriter) Write(ctx context.Context, endpointID, commonName, vpcCIDR string) (string, error) {
	base, err := pw.controlPlane.ExportClientConfig(ctx, endpointID)
	if err != nil {
		return "", errors.Wrap(err, "fail to generate profile")
	}

	material, err := pw.keys.LoadIdentity(commonName)
	if err != nil {
		return "", errors.Wrap(err, "fail to generate profile")
	}

	content, err := renderProfile(base, commonName, vpcCIDR, material)
	if err != nil {
		return "", errors.Wrap(err, "fail to generate profile")
	}

	if err := os.MkdirAll(pw.dir, 0755); err != nil {
		return "", errors.Wrap(err, "fail to generate profile")
	}

	path := filepath.Join(pw.dir, commonName+"-vpn.ovpn")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", errors.Wrap(err, "fail to generate profile")
	}

	log.Infof("client profile generated: %s", path)
	return path, nil
}

func renderProfile(base, commonName, vpcCIDR string, material *keystore.KeyMaterial) (string, error) {
	_, network, err := net.ParseCIDR(vpcCIDR)
	if err != nil {
		return "", errors.Wrapf(err, "invalid VPC CIDR: %s", vpcCIDR)
	}

	dns, err := vpcDNS(network)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n# Split tunneling - only VPC traffic through VPN\n")
	b.WriteString("route-nopull\n")
	fmt.Fprintf(&b, "route %s %s\n", network.IP, net.IP(network.Mask))
	fmt.Fprintf(&b, "\ndhcp-option DNS %s\n", dns)
	fmt.Fprintf(&b, "\n# Client certificate for %s\n", commonName)
	b.WriteString("<cert>\n")
	b.Write(material.Cert)
	b.WriteString("</cert>\n\n")
	b.WriteString("<key>\n")
	b.Write(material.Key)
	b.WriteString("</key>\n")

	return b.String(), nil
}

// vpcDNS the VPC resolver address, network base + 2
func vpcDNS(network *net.IPNet) (string, error) {
	ip := network.IP.To4()
	if ip == nil {
		return "", errors.Errorf("not an IPv4 network: %s", network)
	}

	dns := make(net.IP, len(ip))
	copy(dns, ip)
	dns[3] += 2

	return dns.String(), nil
}
