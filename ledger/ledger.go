// Package ledger is the durable record of every certificate serial this CA has
// issued and its revocation status. A generated CRL is a pure projection of
// ledger state, so the ledger must never lose an entry or reuse a serial, even
// across process restarts.
package ledger

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"vpnca/pkg/helper"
	"vpnca/pkg/helper/gormx"
)

var ErrNotFound = errors.New("no ledger entry for identity")

// Ledger gorm backed revocation ledger
type Ledger struct {
	db *gorm.DB

	// serializes counter bump + entry append for in-process callers; cross
	// process writers are out of scope (single operator assumption)
	mu sync.Mutex
}

// New open ledger database and migrate schema
func New(dburl string) (*Ledger, error) {
	db, err := gormx.Open(dburl, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: "vpnca_",
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "fail to open ledger")
	}

	if err := db.AutoMigrate(&Entry{}, &Counter{}); err != nil {
		return nil, errors.Wrap(err, "fail to migrate ledger")
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	db, err := l.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// nextCounter bump a named durable counter and return the new value. Runs
// inside the given transaction so the counter update and whatever the caller
// appends commit or roll back together.
func nextCounter(tx *gorm.DB, name string) (uint64, error) {
	counter := &Counter{Name: name}
	if r := tx.FirstOrCreate(counter, Counter{Name: name}); r.Error != nil {
		return 0, gormx.ConvertSQLError(r.Error)
	}

	counter.Value++
	if r := tx.Save(counter); r.Error != nil {
		return 0, gormx.ConvertSQLError(r.Error)
	}

	return counter.Value, nil
}

// RecordIssuance allocate the next serial and append an active entry.
// The counter row is updated before the entry is appended; both commit in one
// transaction, so a crash can never hand out the same serial twice.
func (l *Ledger) RecordIssuance(ctx context.Context, commonName string) (uint64, error) {
	if err := helper.ValidateVar(commonName, "required"); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var serial uint64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := nextCounter(tx, counterSerial)
		if err != nil {
			return err
		}

		entry := &Entry{
			Serial:     s,
			CommonName: commonName,
			IssuedAt:   *helper.NowP(),
			Status:     StatusActive.String(),
		}
		if r := tx.Create(entry); r.Error != nil {
			return gormx.ConvertSQLError(r.Error)
		}

		serial = s
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "fail to record issuance")
	}

	log.Debugf("issuance recorded: cn=%s, serial=%d", commonName, serial)
	return serial, nil
}

// Revoke transition the most recent entry for commonName to revoked.
// Revoking an already revoked identity is a no-op success.
func (l *Ledger) Revoke(ctx context.Context, commonName string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &Entry{}
	if r := l.db.WithContext(ctx).Where("common_name = ?", commonName).Order("serial DESC").First(entry); r.Error != nil {
		if errors.Is(r.Error, gorm.ErrRecordNotFound) {
			return 0, errors.Wrapf(ErrNotFound, "%s", commonName)
		}
		return 0, errors.Wrap(gormx.ConvertSQLError(r.Error), "fail to revoke")
	}

	if entry.Status == StatusRevoked.String() {
		log.Debugf("already revoked: cn=%s, serial=%d", commonName, entry.Serial)
		return entry.Serial, nil
	}

	entry.Status = StatusRevoked.String()
	entry.RevokedAt = helper.NowP()
	if r := l.db.WithContext(ctx).Save(entry); r.Error != nil {
		return 0, errors.Wrap(gormx.ConvertSQLError(r.Error), "fail to revoke")
	}

	log.Infof("certificate revoked: cn=%s, serial=%d", commonName, entry.Serial)
	return entry.Serial, nil
}

// NextCRLNumber bump the durable CRL number counter
func (l *Ledger) NextCRLNumber(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var number uint64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := nextCounter(tx, counterCRLNumber)
		if err != nil {
			return err
		}
		number = n
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "fail to allocate CRL number")
	}

	return number, nil
}

type ListOpt struct {
	CommonName string
	Status     Status
}

func (l *Ledger) List(ctx context.Context, opts ListOpt) ([]*Entry, error) {
	tx := l.db.WithContext(ctx).Order("serial")

	if opts.CommonName != "" {
		tx = tx.Where("common_name = ?", opts.CommonName)
	}
	if opts.Status != StatusNone {
		tx = tx.Where("status = ?", opts.Status.String())
	}

	entries := []*Entry{}
	if r := tx.Find(&entries); r.Error != nil {
		return nil, errors.Wrap(gormx.ConvertSQLError(r.Error), "fail to list ledger")
	}

	return entries, nil
}

// ActiveSet entries not yet revoked, ordered by serial
func (l *Ledger) ActiveSet(ctx context.Context) ([]*Entry, error) {
	return l.List(ctx, ListOpt{Status: StatusActive})
}

// Revoked revoked entries with revocation times, ordered by serial
func (l *Ledger) Revoked(ctx context.Context) ([]*Entry, error) {
	return l.List(ctx, ListOpt{Status: StatusRevoked})
}

// RevokedSerials serials of all revoked entries, ordered
func (l *Ledger) RevokedSerials(ctx context.Context) ([]uint64, error) {
	entries, err := l.Revoked(ctx)
	if err != nil {
		return nil, err
	}

	return fx.Map(entries, func(e *Entry) uint64 { return e.Serial }), nil
}
