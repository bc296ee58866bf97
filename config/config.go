// Package config exposes process configuration backed by viper.
//
// Every value can be set by environment variable with the VPNCA_ prefix,
// e.g. VPNCA_REGION, VPNCA_LEDGER_DB.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	keyRegion         = "region"
	keyCertsDir       = "certs_dir"
	keyProfileDir     = "profile_dir"
	keyLedgerDB       = "ledger_db"
	keyMirrorBucket   = "mirror_bucket"
	keyMirrorKey      = "mirror_key"
	keyCRLNextUpdate  = "crl_next_update"
	keyListenAddr     = "listen_addr"
	keyDeploymentInfo = "deployment_info"
)

func init() {
	viper.SetEnvPrefix("vpnca")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(keyRegion, "us-east-2")
	viper.SetDefault(keyCertsDir, "certs")
	viper.SetDefault(keyProfileDir, "vpn_user_config")
	viper.SetDefault(keyLedgerDB, "sqlite://certs/ledger.db")
	viper.SetDefault(keyMirrorBucket, "vpn-cert-revocation-list")
	viper.SetDefault(keyMirrorKey, "vpn-crl.pem")
	viper.SetDefault(keyCRLNextUpdate, time.Hour*24*30)
	viper.SetDefault(keyListenAddr, "127.0.0.1:8000")
	viper.SetDefault(keyDeploymentInfo, "vpn_deployment_info.json")
}

func Region() string         { return viper.GetString(keyRegion) }
func CertsDir() string       { return viper.GetString(keyCertsDir) }
func ProfileDir() string     { return viper.GetString(keyProfileDir) }
func LedgerDB() string       { return viper.GetString(keyLedgerDB) }
func MirrorBucket() string   { return viper.GetString(keyMirrorBucket) }
func MirrorKey() string      { return viper.GetString(keyMirrorKey) }
func ListenAddr() string     { return viper.GetString(keyListenAddr) }
func DeploymentInfo() string { return viper.GetString(keyDeploymentInfo) }

// CRLNextUpdateDuration validity window of a generated CRL
func CRLNextUpdateDuration() time.Duration { return viper.GetDuration(keyCRLNextUpdate) }
