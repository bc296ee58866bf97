package deploy

import (
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"vpnca/pkg/helper"
)

// Record persisted deployment state, written once at deployment time and read
// by later operations that need the endpoint id and VPC CIDR without
// re-querying the control plane.
type Record struct {
	ID            string `json:"id"`
	VPCID         string `json:"vpc_id"`
	SubnetID      string `json:"subnet_id"`
	VPCCIDR       string `json:"vpc_cidr"`
	EndpointID    string `json:"vpn_endpoint_id"`
	ServerCertRef string `json:"server_certificate_arn"`
	ClientCARef   string `json:"client_ca_certificate_arn"`
	Region        string `json:"region"`
	AuthType      string `json:"auth_type"`
}

func newRecord() *Record {
	return &Record{
		ID:       shortuuid.New(),
		AuthType: "certificate",
	}
}

func SaveRecord(path string, record *Record) error {
	return errors.Wrap(helper.WriteJSONToFile(path, record), "fail to save deployment record")
}

func LoadRecord(path string) (*Record, error) {
	record := &Record{}
	if err := helper.ReadJSONFile(path, record); err != nil {
		return nil, errors.Wrap(err, "fail to load deployment record")
	}
	return record, nil
}
