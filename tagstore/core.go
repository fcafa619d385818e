// Storage backends for the tags of each entity.
package tagstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/zerologadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"tagger/tags"
	"tagger/types"
	"tagger/yconf"
)

var _ types.Store = (*PGStore)(nil)
var _ types.Creator = (*PGStore)(nil)

// func New {{{

// Loads the configuration and opens the store it names.
//
// The store is closed once ctx is done.
func New(confPath string, l *zerolog.Logger, ctx context.Context) (types.Store, error) {
	ll := l.With().Str("mod", "tagstore").Logger()

	fl := ll.With().Str("func", "New").Logger()

	co, err := loadConf(confPath, &ll)
	if err != nil {
		return nil, err
	}

	fl.Debug().Str("driver", co.Driver).Send()

	if co.Driver == DriverSQLite {
		st, err := OpenSQLite(ctx, co.Database, &ll)
		if err != nil {
			fl.Err(err).Msg("OpenSQLite")
			return nil, err
		}

		go func() {
			<-ctx.Done()
			st.Close()
		}()

		return st, nil
	}

	return newPG(ctx, confPath, co, &ll)
} // }}}

// func newPG {{{

func newPG(ctx context.Context, confPath string, co *conf, l *zerolog.Logger) (*PGStore, error) {
	var err error

	ps := &PGStore{
		l:   l.With().Str("driver", DriverPostgres).Logger(),
		ctx: ctx,
	}

	fl := ps.l.With().Str("func", "newPG").Logger()

	db, err := ps.dbConnect(co)
	if err != nil {
		fl.Err(err).Msg("dbConnect")
		return nil, err
	}

	ps.db.Store(db)
	ps.co.Store(co)

	// Watch the configuration so a changed database or query gets a new pool.
	ca := ycCallers
	ca.Notify = ps.reload

	if ps.yc, err = yconf.New(confPath, ca, &ps.l); err != nil {
		fl.Err(err).Msg("yconf.New")
		ps.Close()
		return nil, err
	}

	if err = ps.yc.Start(ctx); err != nil {
		fl.Err(err).Msg("yc.Start")
		ps.Close()
		return nil, err
	}

	// Background goroutine to watch the context and shut us down.
	go func() {
		<-ps.ctx.Done()
		ps.Close()
	}()

	fl.Debug().Send()

	return ps, nil
} // }}}

// func PGStore.reload {{{

// Called when the configuration files change, replaces the pool if needed.
func (ps *PGStore) reload() {
	fl := ps.l.With().Str("func", "reload").Logger()

	if atomic.LoadUint32(&ps.closed) == 1 {
		return
	}

	loaded, ok := ps.yc.Get().(*conf)
	if !ok || loaded == nil {
		fl.Warn().Msg("invalid config loaded")
		return
	}

	// Get() hands back the shared copy, check() fills in defaults.
	nco := *loaded
	if err := nco.check(); err != nil {
		fl.Warn().Err(err).Msg("ignoring new configuration")
		return
	}

	if nco.Driver != DriverPostgres {
		fl.Warn().Str("driver", nco.Driver).Msg("driver can not be changed while running")
		return
	}

	if old, ok := ps.co.Load().(*conf); ok && !yconfChanged(old, &nco) {
		fl.Debug().Msg("unchanged")
		return
	}

	db, err := ps.dbConnect(&nco)
	if err != nil {
		fl.Err(err).Str("db", nco.Database).Msg("dbConnect, keeping current pool")
		return
	}

	old, _ := ps.getDB()

	ps.db.Store(db)
	ps.co.Store(&nco)

	if old != nil {
		old.Close()
	}

	fl.Info().Msg("reconnected")
} // }}}

// func PGStore.setupDB {{{

// Creates all prepared statements on a new connection.
func (ps *PGStore) setupDB(ctx context.Context, co *conf, db *pgx.Conn) error {
	fl := ps.l.With().Str("func", "setupDB").Logger()

	// No using the database after a shutdown.
	if atomic.LoadUint32(&ps.closed) == 1 {
		fl.Debug().Msg("called after shutdown")
		return types.ErrShutdown
	}

	q := co.Queries

	for _, v := range []struct{ name, sql string }{
		{"read", q.Read},
		{"write", q.Write},
		{"clear", q.Clear},
		{"list", q.List},
		{"scope", q.Scope},
		{"scopes", q.Scopes},
		{"create", q.Create},
	} {
		if _, err := db.Prepare(ctx, v.name, v.sql); err != nil {
			fl.Err(err).Msg(v.name)
			return fmt.Errorf("prepare %s: %w", v.name, err)
		}
	}

	fl.Debug().Msg("prepared")

	return nil
} // }}}

// func PGStore.dbConnect {{{

func (ps *PGStore) dbConnect(co *conf) (*pgxpool.Pool, error) {
	poolConf, err := pgxpool.ParseConfig(co.Database)
	if err != nil {
		return nil, err
	}

	// Set the log level properly.
	cc := poolConf.ConnConfig
	cc.LogLevel = pgx.LogLevelInfo
	cc.Logger = zerologadapter.NewLogger(ps.l)

	// So that each connection creates our prepared statements.
	poolConf.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return ps.setupDB(ctx, co, conn)
	}

	return pgxpool.ConnectConfig(ps.ctx, poolConf)
} // }}}

// func PGStore.getDB {{{

// Returns the current database pool.
//
// Loads it from an atomic value so that it can be replaced while running without causing issues.
func (ps *PGStore) getDB() (*pgxpool.Pool, error) {
	if atomic.LoadUint32(&ps.closed) == 1 {
		return nil, types.ErrShutdown
	}

	db, ok := ps.db.Load().(*pgxpool.Pool)
	if !ok || db == nil {
		err := errors.New("Not a pool")
		ps.l.Warn().Str("func", "getDB").Err(err).Send()
		return nil, err
	}

	return db, nil
} // }}}

// func PGStore.Close {{{

// Disconnects from the database.
func (ps *PGStore) Close() {
	fl := ps.l.With().Str("func", "Close").Logger()

	db, _ := ps.db.Load().(*pgxpool.Pool)

	if !atomic.CompareAndSwapUint32(&ps.closed, 0, 1) {
		fl.Debug().Msg("already closed")
		return
	}

	if db != nil {
		db.Close()
	}

	fl.Info().Msg("closed")
} // }}}

// func PGStore.ReadTags {{{

func (ps *PGStore) ReadTags(ctx context.Context, e tags.Entity) (tags.Tags, bool, error) {
	var set bool
	var t []string

	db, err := ps.getDB()
	if err != nil {
		return nil, false, err
	}

	err = db.QueryRow(ctx, "read", e.Scope, e.ID).Scan(&set, &t)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, ErrNotFound
	case err != nil:
		ps.l.Err(err).Str("func", "ReadTags").Str("scope", e.Scope).Str("id", e.ID).Send()
		return nil, false, err
	}

	if !set {
		return nil, false, nil
	}

	return tags.Tags(t), true, nil
} // }}}

// func PGStore.exec {{{

// Runs a statement that must touch the one entity.
func (ps *PGStore) exec(ctx context.Context, name string, args ...interface{}) error {
	db, err := ps.getDB()
	if err != nil {
		return err
	}

	ct, err := db.Exec(ctx, name, args...)
	if err != nil {
		ps.l.Err(err).Str("func", "exec").Str("query", name).Send()
		return err
	}

	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
} // }}}

// func PGStore.WriteTags {{{

func (ps *PGStore) WriteTags(ctx context.Context, e tags.Entity, t tags.Tags) error {
	return ps.exec(ctx, "write", e.Scope, e.ID, []string(t))
} // }}}

// func PGStore.ClearTags {{{

func (ps *PGStore) ClearTags(ctx context.Context, e tags.Entity) error {
	return ps.exec(ctx, "clear", e.Scope, e.ID)
} // }}}

// func PGStore.CreateEntity {{{

func (ps *PGStore) CreateEntity(ctx context.Context, e tags.Entity, t tags.Tags) error {
	var tv []string

	db, err := ps.getDB()
	if err != nil {
		return err
	}

	// NULL for unset.
	if len(t) > 0 {
		tv = t
	}

	if _, err := db.Exec(ctx, "create", e.Scope, e.ID, tv); err != nil {
		ps.l.Err(err).Str("func", "CreateEntity").Str("scope", e.Scope).Str("id", e.ID).Send()
		return err
	}

	return nil
} // }}}

// func PGStore.ListScope {{{

func (ps *PGStore) ListScope(ctx context.Context, scope string) ([]tags.Entity, error) {
	var exists bool

	fl := ps.l.With().Str("func", "ListScope").Str("scope", scope).Logger()

	db, err := ps.getDB()
	if err != nil {
		return nil, err
	}

	if err := db.QueryRow(ctx, "scope", scope).Scan(&exists); err != nil {
		fl.Err(err).Msg("scope")
		return nil, err
	}

	if !exists {
		return nil, tags.ScopeErr("ListScope", scope)
	}

	rows, err := db.Query(ctx, "list", scope)
	if err != nil {
		fl.Err(err).Msg("list")
		return nil, err
	}

	defer rows.Close()

	var out []tags.Entity

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			fl.Err(err).Msg("scan")
			return nil, err
		}

		out = append(out, tags.Entity{Scope: scope, ID: id})
	}

	return out, rows.Err()
} // }}}

// func PGStore.Scopes {{{

func (ps *PGStore) Scopes(ctx context.Context) ([]string, error) {
	db, err := ps.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, "scopes")
	if err != nil {
		ps.l.Err(err).Str("func", "Scopes").Send()
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
