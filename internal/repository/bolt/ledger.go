// Package bolt provides a BoltDB-backed ledger store. Each group owns a
// nested bucket keyed by day; a day's records are one JSON value replaced in
// a single update transaction.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

const ledgerBucket = "ledger"

// LedgerRepository stores daily ledgers in a BoltDB file.
type LedgerRepository struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed ledger store at the provided path.
func Open(path string) (*LedgerRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ledgerBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger bucket: %w", err)
	}
	return &LedgerRepository{db: db}, nil
}

// Close closes the underlying BoltDB database.
func (r *LedgerRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *LedgerRepository) Load(ctx context.Context, groupID string, day models.Day) ([]models.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := []models.AttendanceRecord{}
	err := r.db.View(func(tx *bbolt.Tx) error {
		group := tx.Bucket([]byte(ledgerBucket)).Bucket([]byte(groupID))
		if group == nil {
			return nil
		}
		payload := group.Get([]byte(day))
		if payload == nil {
			return nil
		}
		if err := json.Unmarshal(payload, &records); err != nil {
			return fmt.Errorf("unmarshal ledger: %w", errors.Join(repository.ErrInvalid, err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger %s/%s: %w", groupID, day, err)
	}
	return records, nil
}

func (r *LedgerRepository) Save(ctx context.Context, groupID string, day models.Day, records []models.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	err = r.db.Update(func(tx *bbolt.Tx) error {
		group, err := tx.Bucket([]byte(ledgerBucket)).CreateBucketIfNotExists([]byte(groupID))
		if err != nil {
			return err
		}
		return group.Put([]byte(day), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to save ledger %s/%s: %w", groupID, day, errors.Join(repository.ErrUnavailable, err))
	}
	return nil
}

func (r *LedgerRepository) ListDays(ctx context.Context, groupID string) ([]models.Day, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	days := []models.Day{}
	err := r.db.View(func(tx *bbolt.Tx) error {
		group := tx.Bucket([]byte(ledgerBucket)).Bucket([]byte(groupID))
		if group == nil {
			return nil
		}
		// keys are YYYY-MM-DD, so walking backwards yields most recent first
		c := group.Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			days = append(days, models.Day(bytes.Clone(k)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger days for %s: %w", groupID, err)
	}
	return days, nil
}

var _ repository.LedgerRepository = (*LedgerRepository)(nil)
