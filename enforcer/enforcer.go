// Package enforcer force-terminates live endpoint sessions belonging to a
// revoked identity.
package enforcer

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"

	"vpnca/cloud"
)

type Enforcer struct {
	controlPlane cloud.ControlPlane
}

func New(controlPlane cloud.ControlPlane) *Enforcer {
	return &Enforcer{controlPlane: controlPlane}
}

// DisconnectAll terminate every active session authenticated as commonName.
// Terminations fan out in parallel since each targets a distinct remote
// resource; a failed termination is logged and does not abort the rest.
// Returns the number of sessions terminated; zero matches is a valid outcome.
func (en *Enforcer) DisconnectAll(ctx context.Context, endpointID, commonName string) (int, error) {
	sessions, err := en.controlPlane.ListSessions(ctx, endpointID)
	if err != nil {
		return 0, errors.Wrap(err, "fail to list sessions")
	}

	matched := fx.Filter(sessions, func(s *cloud.Session) bool {
		return s.Active && s.CommonName == commonName
	})
	if len(matched) == 0 {
		log.Debugf("no active sessions: cn=%s", commonName)
		return 0, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var merr *multierror.Error
	terminated := 0

	for _, sess := range matched {
		sess := sess

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := en.controlPlane.TerminateSession(ctx, endpointID, sess.ID); err != nil {
				log.Errorf("fail to terminate session %s: %v", sess.ID, err)

				mu.Lock()
				merr = multierror.Append(merr, errors.Wrapf(err, "session %s", sess.ID))
				mu.Unlock()
				return
			}

			log.Infof("session terminated: %s", sess.ID)

			mu.Lock()
			terminated++
			mu.Unlock()
		}()
	}
	wg.Wait()

	return terminated, merr.ErrorOrNil()
}
