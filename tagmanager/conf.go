package tagmanager

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"tagger/tags"
	"tagger/yconf"
)

// func defaultConf {{{

func defaultConf() *conf {
	return &conf{
		saved: make(tags.SavedQueries),
	}
} // }}}

// func conf.rules {{{

func (co *conf) rules() bool {
	return co.Rules == nil || *co.Rules
} // }}}

// func conf.caseInsensitive {{{

func (co *conf) caseInsensitive() bool {
	return co.CaseInsensitive != nil && *co.CaseInsensitive
} // }}}

// func TagManager.loadConf {{{

// Loads the configuration and keeps watching it until ctx is done.
func (tm *TagManager) loadConf(ctx context.Context, confPath string) error {
	var err error

	fl := tm.l.With().Str("func", "loadConf").Logger()

	ca := yconf.Callers{
		Empty:   func() interface{} { return defaultConf() },
		Convert: yconfConvert,
		Merge:   yconfMerge,
		Changed: yconfChanged,
		Notify:  tm.confChanged,
	}

	if tm.yc, err = yconf.New(confPath, ca, &tm.l); err != nil {
		fl.Err(err).Msg("yconf.New")
		return err
	}

	if err = tm.yc.Start(ctx); err != nil {
		fl.Err(err).Msg("yc.Start")
		return err
	}

	// Notify runs in the background, so store the first one ourselves.
	tm.confChanged()

	fl.Debug().Interface("conf", tm.conf()).Send()

	return nil
} // }}}

// func TagManager.confChanged {{{

func (tm *TagManager) confChanged() {
	fl := tm.l.With().Str("func", "confChanged").Logger()

	co, ok := tm.yc.Get().(*conf)
	if !ok || co == nil {
		fl.Warn().Msg("invalid config loaded")
		return
	}

	tm.co.Store(co)

	fl.Info().Str("scene", co.Scene).Int("queries", len(co.saved)).Msg("loaded")
} // }}}

// func TagManager.conf {{{

// Returns the current configuration, never nil.
func (tm *TagManager) conf() *conf {
	if co, ok := tm.co.Load().(*conf); ok && co != nil {
		return co
	}

	return defaultConf()
} // }}}

// func yconfConvert {{{

func yconfConvert(in interface{}) (interface{}, error) {
	co, ok := in.(*conf)
	if !ok {
		return nil, errors.New("not a *conf")
	}

	co.Scene = strings.TrimSpace(co.Scene)

	saved, err := tags.ConfMakeQueries(co.Queries)
	if err != nil {
		return nil, err
	}

	co.saved = saved

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

	if inB.Scene != "" {
		inA.Scene = inB.Scene
	}

	if inB.Rules != nil {
		inA.Rules = inB.Rules
	}

	if inB.CaseInsensitive != nil {
		inA.CaseInsensitive = inB.CaseInsensitive
	}

	if inA.Queries == nil {
		inA.Queries = make(tags.ConfQueries, len(inB.Queries))
	}

	if inA.saved == nil {
		inA.saved = make(tags.SavedQueries, len(inB.saved))
	}

	// A query of the same name replaces the earlier one.
	for name, cq := range inB.Queries {
		inA.Queries[name] = cq
	}

	for name, sq := range inB.saved {
		inA.saved[name] = sq
	}

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

	if origConf.Scene != newConf.Scene || origConf.caseInsensitive() != newConf.caseInsensitive() {
		return true
	}

	if origConf.rules() != newConf.rules() {
		return true
	}

	return !reflect.DeepEqual(origConf.Queries, newConf.Queries)
} // }}}
