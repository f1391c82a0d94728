// Package storage is the back-office SQL layer. Every method runs on the
// Store's Querier, so the same code serves the pool and an open transaction.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInUse is returned when a row still has future active bookings.
	ErrInUse = errors.New("has future bookings")
)

type Store struct {
	q      db.Querier
	tx     pgx.Tx
	outbox *outbox.Repository
}

func New(q db.Querier) *Store {
	return &Store{q: q, outbox: outbox.NewRepository()}
}

// InTx runs fn with a Store bound to a new transaction (or a savepoint when
// s is already transactional).
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return db.InTx(ctx, s.q, func(tx pgx.Tx) error {
		return fn(&Store{q: tx, tx: tx, outbox: s.outbox})
	})
}

// Emit writes an outbox event. It must be called inside InTx so the event
// commits with the change it describes.
func (s *Store) Emit(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error {
	if s.tx == nil {
		return errors.New("outbox event emitted outside a transaction")
	}
	evt, err := outbox.NewEvent(aggregateType, aggregateID, eventType, payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, s.tx, evt)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return err
}

func affected(n int64) error {
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// where collects AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

// add appends cond; every ? in it refers to arg.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder for an argument appended after the conditions.
func (w *where) next(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}
