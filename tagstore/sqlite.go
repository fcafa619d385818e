package tagstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/rs/zerolog"
	"tagger/tags"
	"tagger/types"

	// Register the sqlite driver
	_ "modernc.org/sqlite"
)

var _ types.Store = (*SQLiteStore)(nil)
var _ types.Creator = (*SQLiteStore)(nil)

// Set on every connection the pool opens, not just the first.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scopes (
	scope TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS entities (
	seq   INTEGER PRIMARY KEY AUTOINCREMENT,
	scope TEXT NOT NULL REFERENCES scopes(scope),
	id    TEXT NOT NULL,
	tags  TEXT,
	UNIQUE (scope, id)
);
`

// func OpenSQLite {{{

// Opens (creating if needed) the sqlite database at path.
//
// Tags are kept as a JSON array, NULL when unset.
func OpenSQLite(ctx context.Context, path string, l *zerolog.Logger) (*SQLiteStore, error) {
	ss := &SQLiteStore{
		l: l.With().Str("driver", DriverSQLite).Logger(),
	}

	fl := ss.l.With().Str("func", "OpenSQLite").Str("path", path).Logger()

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		fl.Err(err).Msg("open")
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		fl.Err(err).Msg("schema")
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}

	ss.db = db

	fl.Debug().Send()

	return ss, nil
} // }}}

// func sqliteDSN {{{

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, pragma := range sqlitePragmas {
		q.Add("_pragma", pragma)
	}

	return path + "?" + q.Encode()
} // }}}

// func SQLiteStore.Close {{{

func (ss *SQLiteStore) Close() {
	if !atomic.CompareAndSwapUint32(&ss.closed, 0, 1) {
		return
	}

	if err := ss.db.Close(); err != nil {
		ss.l.Warn().Err(err).Str("func", "Close").Send()
	}
} // }}}

// func SQLiteStore.isClosed {{{

func (ss *SQLiteStore) isClosed() bool {
	return atomic.LoadUint32(&ss.closed) == 1
} // }}}

// func SQLiteStore.CreateEntity {{{

func (ss *SQLiteStore) CreateEntity(ctx context.Context, e tags.Entity, t tags.Tags) error {
	var raw sql.NullString

	if ss.isClosed() {
		return types.ErrShutdown
	}

	fl := ss.l.With().Str("func", "CreateEntity").Str("scope", e.Scope).Str("id", e.ID).Logger()

	if len(t) > 0 {
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}

		raw = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		fl.Err(err).Msg("begin")
		return err
	}

	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO scopes (scope) VALUES (?)`, e.Scope); err != nil {
		fl.Err(err).Msg("scope")
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO entities (scope, id, tags) VALUES (?, ?, ?)
		ON CONFLICT (scope, id) DO UPDATE SET tags = excluded.tags`, e.Scope, e.ID, raw); err != nil {
		fl.Err(err).Msg("entity")
		return err
	}

	return tx.Commit()
} // }}}

// func SQLiteStore.ReadTags {{{

func (ss *SQLiteStore) ReadTags(ctx context.Context, e tags.Entity) (tags.Tags, bool, error) {
	var raw sql.NullString

	if ss.isClosed() {
		return nil, false, types.ErrShutdown
	}

	err := ss.db.QueryRowContext(ctx, `SELECT tags FROM entities WHERE scope = ? AND id = ?`, e.Scope, e.ID).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, ErrNotFound
	case err != nil:
		ss.l.Err(err).Str("func", "ReadTags").Str("scope", e.Scope).Str("id", e.ID).Send()
		return nil, false, err
	}

	if !raw.Valid {
		return nil, false, nil
	}

	t := tags.Tags{}
	if err := json.Unmarshal([]byte(raw.String), &t); err != nil {
		return nil, false, fmt.Errorf("decode tags of %s/%s: %w", e.Scope, e.ID, err)
	}

	return t, true, nil
} // }}}

// func SQLiteStore.exec {{{

func (ss *SQLiteStore) exec(ctx context.Context, query string, args ...interface{}) error {
	if ss.isClosed() {
		return types.ErrShutdown
	}

	res, err := ss.db.ExecContext(ctx, query, args...)
	if err != nil {
		ss.l.Err(err).Str("func", "exec").Send()
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
} // }}}

// func SQLiteStore.WriteTags {{{

func (ss *SQLiteStore) WriteTags(ctx context.Context, e tags.Entity, t tags.Tags) error {
	if t == nil {
		t = tags.Tags{}
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return ss.exec(ctx, `UPDATE entities SET tags = ? WHERE scope = ? AND id = ?`, string(raw), e.Scope, e.ID)
} // }}}

// func SQLiteStore.ClearTags {{{

func (ss *SQLiteStore) ClearTags(ctx context.Context, e tags.Entity) error {
	return ss.exec(ctx, `UPDATE entities SET tags = NULL WHERE scope = ? AND id = ?`, e.Scope, e.ID)
} // }}}

// func SQLiteStore.ListScope {{{

// Entities are returned in the order they were created.
func (ss *SQLiteStore) ListScope(ctx context.Context, scope string) ([]tags.Entity, error) {
	var exists bool

	if ss.isClosed() {
		return nil, types.ErrShutdown
	}

	fl := ss.l.With().Str("func", "ListScope").Str("scope", scope).Logger()

	if err := ss.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM scopes WHERE scope = ?)`, scope).Scan(&exists); err != nil {
		fl.Err(err).Msg("scope")
		return nil, err
	}

	if !exists {
		return nil, tags.ScopeErr("ListScope", scope)
	}

	rows, err := ss.db.QueryContext(ctx, `SELECT id FROM entities WHERE scope = ? ORDER BY seq`, scope)
	if err != nil {
		fl.Err(err).Msg("list")
		return nil, err
	}

	defer rows.Close()

	out := []tags.Entity{}

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		out = append(out, tags.Entity{Scope: scope, ID: id})
	}

	return out, rows.Err()
} // }}}

// func SQLiteStore.Scopes {{{

func (ss *SQLiteStore) Scopes(ctx context.Context) ([]string, error) {
	if ss.isClosed() {
		return nil, types.ErrShutdown
	}

	rows, err := ss.db.QueryContext(ctx, `SELECT scope FROM scopes ORDER BY scope`)
	if err != nil {
		ss.l.Err(err).Str("func", "Scopes").Send()
		return nil, err
	}

	defer rows.Close()

	var out []string

	for rows.Next() {
		var scope string

		if err := rows.Scan(&scope); err != nil {
			return nil, err
		}

		out = append(out, scope)
	}

	return out, rows.Err()
} // }}}
