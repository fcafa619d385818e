package tagstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"tagger/yconf"
)

// Used for any query not set within the configuration.
var defaultQueries = confQueries{
	Read:   `SELECT tags IS NOT NULL, coalesce(tags, '{}') FROM tagger.entities WHERE scope = $1 AND id = $2`,
	Write:  `UPDATE tagger.entities SET tags = $3 WHERE scope = $1 AND id = $2`,
	Clear:  `UPDATE tagger.entities SET tags = NULL WHERE scope = $1 AND id = $2`,
	List:   `SELECT id FROM tagger.entities WHERE scope = $1 ORDER BY id`,
	Scope:  `SELECT EXISTS (SELECT 1 FROM tagger.scopes WHERE scope = $1)`,
	Scopes: `SELECT scope FROM tagger.scopes ORDER BY scope`,
	Create: `WITH s AS (INSERT INTO tagger.scopes (scope) VALUES ($1) ON CONFLICT DO NOTHING) INSERT INTO tagger.entities (scope, id, tags) VALUES ($1, $2, $3) ON CONFLICT (scope, id) DO UPDATE SET tags = EXCLUDED.tags`,
}

var ycCallers = yconf.Callers{
	Empty:   func() interface{} { return &conf{} },
	Convert: yconfConvert,
	Merge:   yconfMerge,
	Changed: yconfChanged,
}

// func loadConf {{{

// Loads the configuration once, filling in any defaults.
func loadConf(confPath string, l *zerolog.Logger) (*conf, error) {
	fl := l.With().Str("func", "loadConf").Logger()

	coInt, err := yconf.Load(confPath, ycCallers, l)
	if err != nil {
		fl.Err(err).Msg("yconf.Load")
		return nil, err
	}

	co, ok := coInt.(*conf)
	if !ok {
		// This one should not really be possible, so this error needs to be sent.
		err := errors.New("invalid config loaded")
		fl.Err(err).Send()
		return nil, err
	}

	if err := co.check(); err != nil {
		fl.Err(err).Send()
		return nil, err
	}

	fl.Debug().Interface("conf", co).Send()

	return co, nil
} // }}}

// func conf.check {{{

// Fills in the defaults then makes sure everything we need is set.
func (co *conf) check() error {
	if co.Driver == "" {
		co.Driver = DriverPostgres
	}

	if co.Database == "" {
		return errors.New("Missing database")
	}

	switch co.Driver {
	case DriverPostgres:
	case DriverSQLite:
		return nil
	default:
		return fmt.Errorf("Unknown driver %q", co.Driver)
	}

	q := &co.Queries

	for _, v := range []struct {
		q   *string
		def string
	}{
		{&q.Read, defaultQueries.Read},
		{&q.Write, defaultQueries.Write},
		{&q.Clear, defaultQueries.Clear},
		{&q.List, defaultQueries.List},
		{&q.Scope, defaultQueries.Scope},
		{&q.Scopes, defaultQueries.Scopes},
		{&q.Create, defaultQueries.Create},
	} {
		if *v.q == "" {
			*v.q = v.def
		}
	}

	return nil
} // }}}

// func yconfConvert {{{

func yconfConvert(in interface{}) (interface{}, error) {
	co, ok := in.(*conf)
	if !ok {
		return nil, errors.New("not a *conf")
	}

	co.Driver = strings.ToLower(strings.TrimSpace(co.Driver))
	co.Database = strings.TrimSpace(co.Database)

	return co, nil
} // }}}

// func yconfMerge {{{

func yconfMerge(inAInt, inBInt interface{}) (interface{}, error) {
	// Previously loaded files are passed in as inA, inB is just the most recent.
	//
	// So merge everything into inA.
	inA, ok := inAInt.(*conf)
	if !ok {
		return nil, errors.New("not a *conf")
	}

	inB, ok := inBInt.(*conf)
	if !ok {
		return nil, errors.New("not a *conf")
	}

	mergeStr := func(a *string, b string) {
		if b != "" {
			*a = b
		}
	}

	mergeStr(&inA.Driver, inB.Driver)
	mergeStr(&inA.Database, inB.Database)

	qa, qb := &inA.Queries, &inB.Queries

	mergeStr(&qa.Read, qb.Read)
	mergeStr(&qa.Write, qb.Write)
	mergeStr(&qa.Clear, qb.Clear)
	mergeStr(&qa.List, qb.List)
	mergeStr(&qa.Scope, qb.Scope)
	mergeStr(&qa.Scopes, qb.Scopes)
	mergeStr(&qa.Create, qb.Create)

	return inA, nil
} // }}}

// func yconfChanged {{{

func yconfChanged(origConfInt, newConfInt interface{}) bool {
	// None of these casts should be able to fail, but we like our sanity.
	origConf, ok := origConfInt.(*conf)
	if !ok {
		return true
	}

	newConf, ok := newConfInt.(*conf)
	if !ok {
		return true
	}

	if origConf.Driver != newConf.Driver || origConf.Database != newConf.Database {
		return true
	}

	// confQueries is all strings, so it compares.
	return origConf.Queries != newConf.Queries
} // }}}
