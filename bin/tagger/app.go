package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"tagger/tagmanager"
	"tagger/tagstore"
	"tagger/types"
	"tagger/yconf"
)

type confFile struct {
	// File/Path to the tag store configuration, passed in to tagstore.New()
	//
	// This one is not optional.
	TagStore string `yaml:"tagstore"`

	// Configuration path for the TagManager.
	//
	// Optional - If left empty, the defaults are used.
	TagManager string `yaml:"tagmanager"`

	// The directory the log file is written to.
	//
	// Optional - If left empty then all logging goes to STDERR.
	LogPath string `yaml:"logpath"`
}

var pathsConf = yconf.Callers{
	Empty: func() interface{} { return &confFile{} },
}

// type app struct {{{

type app struct {
	l zerolog.Logger

	// Where results are printed.
	out io.Writer

	cFile string
	debug bool
	stats bool

	co *confFile
	st types.Store
	tm *tagmanager.TagManager

	logFile *os.File

	// Only set with --stats
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
} // }}}

// func app.setup {{{

// Loads the configuration and opens the store and TagManager.
func (a *app) setup(ctx context.Context) error {
	var err error

	level := zerolog.InfoLevel
	if a.debug {
		level = zerolog.DebugLevel
	}

	a.l = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if a.cFile == "" {
		return errors.New("Missing --conf")
	}

	coInt, err := yconf.Load(a.cFile, pathsConf, &a.l)
	if err != nil {
		a.l.Err(err).Msg("yconf.Load")
		return err
	}

	if a.co, _ = coInt.(*confFile); a.co == nil {
		return errors.New("No paths loaded from configuration")
	}

	if a.co.LogPath != "" {
		if err := a.openLog(level); err != nil {
			a.l.Err(err).Msg("openLog")
			return err
		}
	}

	a.l.Debug().Interface("conf", a.co).Send()

	if a.co.TagStore == "" {
		err := errors.New("Missing tagstore configuration")
		a.l.Err(err).Send()
		return err
	}

	// Relative paths are from the configuration file.
	base := a.cFile
	if s, err := os.Stat(base); err == nil && !s.IsDir() {
		base = filepath.Dir(base)
	}

	if a.st, err = tagstore.New(relPath(base, a.co.TagStore), &a.l, ctx); err != nil {
		a.l.Err(err).Msg("tagstore.New")
		return err
	}

	var opts []tagmanager.Option

	if a.stats {
		a.reader = sdkmetric.NewManualReader()
		a.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.reader))

		m, err := tagmanager.NewMetrics(a.mp)
		if err != nil {
			return err
		}

		opts = append(opts, tagmanager.WithMetrics(m))
	}

	tmConf := ""
	if a.co.TagManager != "" {
		tmConf = relPath(base, a.co.TagManager)
	}

	if a.tm, err = tagmanager.New(tmConf, a.st, &a.l, ctx, opts...); err != nil {
		a.l.Err(err).Msg("tagmanager.New")
		return err
	}

	return nil
} // }}}

// func relPath {{{

func relPath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(base, p)
} // }}}

// func app.openLog {{{

// Sends all logging to a dated file within LogPath, pointing tagger.current at it.
func (a *app) openLog(level zerolog.Level) error {
	fileName := "tagger." + time.Now().Format("2006-01-02") + ".log"
	linkFile := filepath.Join(a.co.LogPath, "tagger.current")

	lf, err := os.OpenFile(filepath.Join(a.co.LogPath, fileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	a.logFile = lf
	a.l = zerolog.New(lf).Level(level).With().Timestamp().Logger()

	// Create our new temporary symlink, then an atomic rename.
	if err := os.Symlink(fileName, linkFile+".tmp"); err != nil {
		a.l.Warn().Err(err).Msg("Symlink")
		return nil
	}

	if err := os.Rename(linkFile+".tmp", linkFile); err != nil {
		a.l.Warn().Err(err).Msg("Rename")
	}

	return nil
} // }}}

// func app.printStats {{{

// Prints every counter recorded during the run.
func (a *app) printStats(ctx context.Context) error {
	var rm metricdata.ResourceMetrics

	if a.reader == nil {
		return nil
	}

	if err := a.reader.Collect(ctx, &rm); err != nil {
		return err
	}

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				attrs := ""
				for _, kv := range dp.Attributes.ToSlice() {
					attrs += fmt.Sprintf(" %s=%s", kv.Key, kv.Value.Emit())
				}

				fmt.Fprintf(a.out, "%s%s %d\n", m.Name, attrs, dp.Value)
			}
		}
	}

	return nil
} // }}}

// func app.Close {{{

func (a *app) Close() {
	// We can be called in the middle of startup, so always nil check.
	if a.mp != nil {
		_ = a.mp.Shutdown(context.Background())
	}

	if a.st != nil {
		a.st.Close()
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
} // }}}
