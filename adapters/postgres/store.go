// Package postgres implements the persistence port over a Postgres
// database via sqlx and lib/pq.
package postgres

import (
	"context"
	"database/sql"

	"cdss/internal/errors"
	"cdss/ports"

	"github.com/jmoiron/sqlx"
)

// Store implements ports.Store over a single *sqlx.DB connection.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected *sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Execute(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "execute failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected failed")
	}
	return n, nil
}

func (s *Store) Fetch(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return errors.Wrap(err, "fetch failed")
	}
	return nil
}

func (s *Store) Scalar(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := s.db.GetContext(ctx, dest, query, args...)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "scalar failed")
	}
	return true, nil
}

func (s *Store) Exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var found bool
	err := s.db.GetContext(ctx, &found, query, args...)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return found, nil
}

func (s *Store) Begin(ctx context.Context) (ports.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction failed")
	}
	return &sqlTx{tx: tx}, nil
}

// sqlTx implements ports.Tx over *sqlx.Tx.
type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) Execute(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "execute failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected failed")
	}
	return n, nil
}

func (t *sqlTx) Fetch(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := t.tx.SelectContext(ctx, dest, query, args...); err != nil {
		return errors.Wrap(err, "fetch failed")
	}
	return nil
}

func (t *sqlTx) Scalar(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := t.tx.GetContext(ctx, dest, query, args...)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "scalar failed")
	}
	return true, nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, "commit failed")
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, "rollback failed")
	}
	return nil
}
