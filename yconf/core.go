// YAML configuration for tagger.
package yconf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// func New {{{

// Creates and returns a new *YConf, though it does not yet parse the configuration files.
//
// For background loading and watching, use Start().
// If you only want to manually check the configuration, use CheckConf().
func New(confPath string, ca Callers, l *zerolog.Logger) (*YConf, error) {
	if ca.Empty == nil {
		return nil, errors.New("Missing Callers.Empty")
	}

	if confPath == "" {
		return nil, errors.New("Missing configuration path")
	}

	yc := &YConf{
		confPath: confPath,
		ca:       ca,
		Interval: time.Minute,

		// So we never have a situation where lo is nil
		lo: &loaded{},

		l: l.With().Str("mod", "yconf").Str("path", confPath).Logger(),
	}

	fl := yc.l.With().Str("func", "New").Logger()
	fl.Debug().Msg("Created")

	return yc, nil
} // }}}

// func Load {{{

// Loads the configuration once, returning whatever was loaded.
//
// For the programs that just want their configuration and do not care about it changing.
func Load(confPath string, ca Callers, l *zerolog.Logger) (interface{}, error) {
	yc, err := New(confPath, ca, l)
	if err != nil {
		return nil, err
	}

	if err := yc.CheckConf(); err != nil {
		return nil, err
	}

	co := yc.Get()
	if co == nil {
		return nil, fmt.Errorf("%s: no configuration files found", confPath)
	}

	return co, nil
} // }}}

// func YConf.Start {{{

// Loads and processes all the configuration files in the path provided, then keeps checking
// them for changes in the background until ctx is done.
//
// If an error is returned then no background monitoring started, and is safe to call again if the problem is fixed.
func (yc *YConf) Start(ctx context.Context) error {
	fl := yc.l.With().Str("func", "Start").Logger()

	if err := yc.CheckConf(); err != nil {
		fl.Err(err).Msg("CheckConf")
		return err
	}

	go yc.loopy(ctx)

	fl.Debug().Msg("Started")

	return nil
} // }}}

// func YConf.isLoadedEqual {{{

// This compares the already loaded lo with the newly loaded one and returns if the two are equal or not.
//
// Note that is there is no Changed function, this always returns false (since it has no way to tell).
func (yc *YConf) isLoadedEqual(nlo *loaded) bool {
	yc.loMut.RLock()
	defer yc.loMut.RUnlock()

	// First time loaded?
	if yc.lo == nil || yc.lo.conf == nil {
		return false
	}

	if yc.ca.Changed == nil {
		return false
	}

	return !yc.ca.Changed(yc.lo.conf, nlo.conf)
} // }}}

// func YConf.reload {{{

// Attempts to reload the configuration files.
//
// Sends a notification if the files did change, in the event of an error the previously
// loaded configuration is kept and no notifications are sent.
func (yc *YConf) reload() error {
	fl := yc.l.With().Str("func", "reload").Logger()

	lo := &loaded{}

	if err := yc.loadConf(lo, yc.confPath); err != nil {
		fl.Err(err).Msg("loadConf")
		return fmt.Errorf("loadConf(%s): %w", yc.confPath, err)
	}

	// If nothing actually changed we only update the timestamp, otherwise touching a file
	// would have us reloading it every check from then on.
	if yc.isLoadedEqual(lo) {
		fl.Debug().Msg("unchanged")

		yc.loMut.Lock()
		yc.lo.newest = lo.newest
		yc.loMut.Unlock()
		return nil
	}

	yc.loMut.Lock()
	yc.lo = lo
	yc.loMut.Unlock()

	if yc.ca.Notify != nil {
		go yc.ca.Notify()
	}

	return nil
} // }}}

// func YConf.Get {{{

// Returns the currently loaded configuration.
//
// Returns nil if no value found (not yet loaded)
func (yc *YConf) Get() interface{} {
	yc.loMut.RLock()
	defer yc.loMut.RUnlock()

	if yc.lo == nil {
		return nil
	}

	return yc.lo.conf
} // }}}

// func YConf.hasChanged {{{

// Returns true if there is a file in the configuration path that is newer then newest.
func (yc *YConf) hasChanged(newest time.Time, path string) (bool, error) {
	s, err := os.Stat(path)
	if err != nil {
		return true, err
	}

	if s.ModTime().After(newest) {
		return true, nil
	}

	if !s.IsDir() {
		return false, nil
	}

	files, err := os.ReadDir(path)
	if err != nil {
		return true, err
	}

	for _, file := range files {
		name := file.Name()

		if len(name) < 1 || name[0] == '.' {
			continue
		}

		if !file.IsDir() && !isConf(name) {
			continue
		}

		changed, err := yc.hasChanged(newest, filepath.Join(path, name))
		if err != nil || changed {
			return true, err
		}
	}

	return false, nil
} // }}}

// func YConf.CheckConf {{{

// Loads the configuration if any file has changed since the last time it was loaded.
func (yc *YConf) CheckConf() error {
	fl := yc.l.With().Str("func", "CheckConf").Logger()

	yc.loMut.RLock()
	newest := yc.lo.newest
	yc.loMut.RUnlock()

	changed, err := yc.hasChanged(newest, yc.confPath)
	if err != nil {
		fl.Err(err).Msg("hasChanged")
		return err
	}

	fl.Debug().Bool("changed", changed).Send()

	if !changed {
		return nil
	}

	return yc.reload()
} // }}}

// func YConf.loadConf {{{

// Loads path into lo, recursing into directories.
//
// Files within a directory are loaded sorted by name, so you can have some load before others.
func (yc *YConf) loadConf(lo *loaded, path string) error {
	fl := yc.l.With().Str("func", "loadConf").Str("path", path).Logger()

	s, err := os.Stat(path)
	if err != nil {
		return err
	}

	if s.ModTime().After(lo.newest) {
		lo.newest = s.ModTime()
	}

	if !s.IsDir() {
		if !s.Mode().IsRegular() || !isConf(path) {
			err := errors.New("Not a directory or configuration file")
			fl.Err(err).Send()
			return err
		}

		return yc.loadConfFile(lo, path)
	}

	// ReadDir gives them back sorted already.
	files, err := os.ReadDir(path)
	if err != nil {
		fl.Err(err).Msg("readdir")
		return fmt.Errorf("readdir(%s): %w", path, err)
	}

	for _, file := range files {
		name := file.Name()

		// Skip files starting with '.' (or basic sanity, empty names)
		if len(name) < 1 || name[0] == '.' {
			continue
		}

		full := filepath.Join(path, name)

		if file.IsDir() {
			if err := yc.loadConf(lo, full); err != nil {
				return err
			}
			continue
		}

		if !file.Type().IsRegular() || !isConf(name) {
			continue
		}

		if err := yc.loadConf(lo, full); err != nil {
			return err
		}
	}

	return nil
} // }}}

// func YConf.loadConfFile {{{

func (yc *YConf) loadConfFile(lo *loaded, file string) error {
	var err error

	fl := yc.l.With().Str("func", "loadConfFile").Str("file", file).Logger()

	f, err := os.Open(file)
	if err != nil {
		fl.Err(err).Msg("open")
		return fmt.Errorf("open(%s): %w", file, err)
	}

	defer f.Close()

	ei := yc.ca.Empty()

	// YAML is a superset of JSON, so this handles both.
	if err := yaml.NewDecoder(f).Decode(ei); err != nil {
		fl.Err(err).Msg("decode")
		return fmt.Errorf("decode(%s): %w", file, err)
	}

	if yc.ca.Convert != nil {
		if ei, err = yc.ca.Convert(ei); err != nil {
			fl.Err(err).Msg("convert")
			return fmt.Errorf("convert(%s): %w", file, err)
		}
	}

	switch {
	case lo.conf == nil:
		// First load, so just set conf.
		lo.conf = ei
	case yc.ca.Merge != nil:
		if lo.conf, err = yc.ca.Merge(lo.conf, ei); err != nil {
			fl.Err(err).Msg("merge")
			return fmt.Errorf("merge(%s): %w", file, err)
		}
	default:
		fl.Debug().Msg("replace")
		lo.conf = ei
	}

	fl.Debug().Interface("loaded", lo.conf).Send()

	return nil
} // }}}

// func isConf {{{

func isConf(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))

	// Must have something before the extension as well.
	if len(ext) == len(filepath.Base(name)) {
		return false
	}

	switch ext {
	case ".yaml", ".yml", ".json":
		return true
	}

	return false
} // }}}

// func YConf.loopy {{{

// Handles automatic checking for new or changed configuration files.
func (yc *YConf) loopy(ctx context.Context) {
	fl := yc.l.With().Str("func", "loopy").Logger()

	interval := yc.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if err := yc.CheckConf(); err != nil {
				fl.Warn().Err(err).Msg("CheckConf")
			}
		case <-ctx.Done():
			fl.Debug().Msg("Shutting down")
			return
		}
	}
} // }}}
