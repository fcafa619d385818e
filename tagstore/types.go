package tagstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"tagger/tags"
	"tagger/yconf"
)

var ErrNotFound = errors.New("entity not found")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type conf struct {
	// Either postgres or sqlite, defaults to postgres.
	Driver string `yaml:"driver"`

	// The postgres connection string, or the path of the sqlite file.
	Database string `yaml:"database"`

	// Postgres only, the sqlite schema is fixed.
	Queries confQueries `yaml:"queries"`
}

// Every query is given the scope as $1 and where needed the entity id as $2.
type confQueries struct {
	// Returns two columns, a bool that is false when the tags are unset, and the tags as text[].
	Read string `yaml:"read"`

	// Given the tags as $3.
	Write string `yaml:"write"`

	Clear string `yaml:"clear"`

	// Returns the id of each entity within the scope.
	List string `yaml:"list"`

	// Returns a single bool, if the scope exists.
	Scope string `yaml:"scope"`

	// Returns every scope, takes no arguments.
	Scopes string `yaml:"scopes"`

	// Creates the scope (if needed) and the entity, with no tags.
	Create string `yaml:"create"`
}

// type PGStore struct {{{

// Tags stored within postgres, one text[] column per entity.
type PGStore struct {
	l zerolog.Logger

	// Stores the *pgxpool.Pool
	//
	// We use an atomic because we want to be able to replace the connection while we are running.
	db atomic.Value

	// Stores the *conf the current pool was created with.
	co atomic.Value

	yc *yconf.YConf

	// Do not access directly, use atomics.
	closed uint32

	// Lets us know to shutdown.
	ctx context.Context
} // }}}

// type SQLiteStore struct {{{

// Tags stored as a JSON array within a sqlite database.
type SQLiteStore struct {
	l zerolog.Logger

	db *sql.DB

	closed uint32
} // }}}

// type Mem struct {{{

// An in-memory Store.
//
// Keeps the difference between unset and empty tags so tests can check for it.
type Mem struct {
	mut sync.Mutex

	scopes map[string][]string

	// nil Tags is unset.
	tags map[tags.Entity]tags.Tags

	// Set with FailOn, returned by writes to that entity.
	fail map[tags.Entity]error

	// Number of successful WriteTags and ClearTags calls.
	writes int

	closed uint32
} // }}}
