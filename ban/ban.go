// Package ban runs the ban protocol: revoke the identity's certificate,
// publish the updated CRL, then clear the identity's live sessions.
//
// The protocol is a small state machine:
//
//	Requested → CertificateRevoked → CRLPublished → SessionsCleared → Complete
//
// with a terminal Failed(stage) reachable from any non-terminal state. Every
// step is idempotent, so re-running a failed or completed ban is always safe.
package ban

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"vpnca/crl"
	"vpnca/enforcer"
	"vpnca/ledger"
)

// State protocol state
type State int

const (
	StateRequested State = iota
	StateCertificateRevoked
	StateCRLPublished
	StateSessionsCleared
	StateComplete
	StateFailed
)

var stateToStr = map[State]string{
	StateRequested:          "requested",
	StateCertificateRevoked: "certificate-revoked",
	StateCRLPublished:       "crl-published",
	StateSessionsCleared:    "sessions-cleared",
	StateComplete:           "complete",
	StateFailed:             "failed",
}

func (st State) String() string               { return stateToStr[st] }
func (st State) MarshalJSON() ([]byte, error) { return json.Marshal(st.String()) }

// Stage the protocol step a failure is attributed to
type Stage string

const (
	StageRevoke     Stage = "revoke"
	StagePublish    Stage = "publish"
	StageDisconnect Stage = "disconnect"
)

// Result terminal protocol outcome. FailedStage is set only when State is
// StateFailed; Warning carries a non-fatal disconnect failure.
type Result struct {
	CommonName   string
	Serial       uint64
	State        State
	FailedStage  Stage
	Disconnected int
	Warning      error
}

func (r *Result) Failed() bool { return r.State == StateFailed }

// Protocol the ban workflow over its collaborators
type Protocol struct {
	ledger    *ledger.Ledger
	issuer    *crl.Issuer
	publisher *crl.Publisher
	enforcer  *enforcer.Enforcer
}

func New(ldgr *ledger.Ledger, issuer *crl.Issuer, publisher *crl.Publisher, enf *enforcer.Enforcer) *Protocol {
	return &Protocol{
		ledger:    ldgr,
		issuer:    issuer,
		publisher: publisher,
		enforcer:  enf,
	}
}

// Run execute the full ban protocol for commonName against endpointID.
//
// Stage failures propagate differently on purpose:
//   - revoke failure aborts before anything changed
//   - publish failure leaves the identity revoked in the ledger but possibly
//     not yet at the endpoint; the returned Failed(publish) result tells the
//     operator to re-run, which closes the window
//   - disconnect failure is only a warning: the published CRL already rejects
//     the identity's future connection attempts
func (p *Protocol) Run(ctx context.Context, endpointID, commonName string) (*Result, error) {
	result := &Result{CommonName: commonName, State: StateRequested}

	serial, err := p.ledger.Revoke(ctx, commonName)
	if err != nil {
		result.State, result.FailedStage = StateFailed, StageRevoke
		return result, errors.Wrapf(err, "ban %s failed at %s", commonName, StageRevoke)
	}
	result.Serial, result.State = serial, StateCertificateRevoked

	generated, err := p.issuer.Generate(ctx)
	if err != nil {
		result.State, result.FailedStage = StateFailed, StagePublish
		return result, errors.Wrapf(err, "ban %s failed at %s", commonName, StagePublish)
	}

	if err := p.publisher.Publish(ctx, endpointID, generated); err != nil {
		result.State, result.FailedStage = StateFailed, StagePublish
		return result, errors.Wrapf(err, "ban %s failed at %s", commonName, StagePublish)
	}
	result.State = StateCRLPublished

	count, err := p.enforcer.DisconnectAll(ctx, endpointID, commonName)
	result.Disconnected = count
	if err != nil {
		// future connections are rejected by the published CRL regardless
		log.Warnf("ban %s: %d session(s) not disconnected: %v", commonName, count, err)
		result.Warning = errors.Wrapf(err, "ban %s partial at %s", commonName, StageDisconnect)
	}
	result.State = StateSessionsCleared

	result.State = StateComplete
	log.Infof("user banned: cn=%s, serial=%d, disconnected=%d", commonName, serial, count)
	return result, nil
}
