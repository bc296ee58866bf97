package crl

import (
	"context"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"vpnca/cloud"
)

// Publisher pushes a generated CRL to the object mirror and into the remote
// endpoint's revocation list slot.
type Publisher struct {
	mirror       cloud.Mirror
	controlPlane cloud.ControlPlane

	bucket string
	key    string
}

func NewPublisher(mirror cloud.Mirror, controlPlane cloud.ControlPlane, bucket, key string) *Publisher {
	return &Publisher{
		mirror:       mirror,
		controlPlane: controlPlane,
		bucket:       bucket,
		key:          key,
	}
}

// Publish write the CRL to the mirror under the well known key, then replace
// the endpoint's revocation list. Both steps must succeed; when the endpoint
// push fails the mirror copy stays in place and the caller retries Publish as
// a whole, which is safe because the mirror write is an idempotent overwrite.
func (p *Publisher) Publish(ctx context.Context, endpointID string, crl *CRL) error {
	if err := p.mirror.EnsureBucket(ctx, p.bucket); err != nil {
		return errors.Wrap(err, "fail to publish CRL")
	}

	if err := p.mirror.Put(ctx, p.bucket, p.key, crl.PEM); err != nil {
		return errors.Wrap(err, "fail to publish CRL")
	}

	log.Debugf("CRL mirrored: %s/%s", p.bucket, p.key)

	if err := p.controlPlane.ImportCRL(ctx, endpointID, crl.PEM); err != nil {
		return errors.Wrap(err, "fail to publish CRL to endpoint")
	}

	log.Infof("CRL published: number=%d, endpoint=%s", crl.Number, endpointID)
	return nil
}
