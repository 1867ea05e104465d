package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/karasz/kelissuer/internal/errs"
)

type sqliteStore struct{ db *sql.DB }

// OpenSQLite opens/creates a SQLite-backed Store at dsn (a file path, or
// ":memory:" for tests) and ensures schema and WAL pragmas are in place.
func OpenSQLite(dsn string) (Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.KindStore, err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errs.Wrapf(errs.KindStore, err, "set %s", p)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS events (
  prefix TEXT    NOT NULL,
  sn     INTEGER NOT NULL,
  data   BLOB    NOT NULL,
  PRIMARY KEY (prefix, sn)
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.KindStore, err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Append(r Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return errs.Wrap(errs.KindStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSn sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sn) FROM events WHERE prefix=?`, r.Prefix).Scan(&maxSn); err != nil {
		return errs.Wrap(errs.KindStore, err)
	}
	wantSn := uint64(0)
	if maxSn.Valid {
		wantSn = uint64(maxSn.Int64) + 1
	}
	if r.Sn != wantSn {
		return errs.Newf(errs.KindStore, "non-contiguous append for %q: have sn %d, want %d, got %d", r.Prefix, maxSn.Int64, wantSn, r.Sn)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO events(prefix, sn, data) VALUES(?, ?, ?)`, r.Prefix, r.Sn, r.Data); err != nil {
		return errs.Wrap(errs.KindStore, err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStore, err)
	}
	return nil
}

func (s *sqliteStore) Get(prefix string, sn uint64) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM events WHERE prefix=? AND sn=?`, prefix, sn).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.KindStore, err)
	}
	return data, true, nil
}

func (s *sqliteStore) TailSn(prefix string) (uint64, bool, error) {
	var maxSn sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(sn) FROM events WHERE prefix=?`, prefix).Scan(&maxSn); err != nil {
		return 0, false, errs.Wrap(errs.KindStore, err)
	}
	if !maxSn.Valid {
		return 0, false, nil
	}
	return uint64(maxSn.Int64), true, nil
}

func (s *sqliteStore) Iter(prefix string, startSn uint64) (<-chan Record, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	rows, err := s.db.QueryContext(ctx,
		`SELECT sn, data FROM events WHERE prefix=? AND sn>=? ORDER BY sn ASC`, prefix, startSn)
	if err != nil {
		cancel()
		return nil, nil, errs.Wrap(errs.KindStore, err)
	}
	out := make(chan Record, 64)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			var sn uint64
			var data []byte
			if err := rows.Scan(&sn, &data); err != nil {
				return
			}
			select {
			case out <- Record{Prefix: prefix, Sn: sn, Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

func (s *sqliteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.KindStore, err)
	}
	return nil
}
