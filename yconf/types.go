package yconf

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type loaded struct {
	// Timestamp for the newest modified configuration file.
	newest time.Time

	// Previously loaded conf
	conf interface{}
}

// When loading from a YAML file you typically load values into a string, or other basic types.
// But you often need to convert those values into something else.
//
// This function takes the loaded YAML value and passes it in for converting to another type.
// This is done during loading and before any Merge() calls are made.
//
// For example the tag store lowercases the driver name, and the tag manager compiles its saved queries.
//
// Returning an error fails loading of the file, and any previously loaded configuration is kept.
type Convert func(interface{}) (interface{}, error)

// The Merge function handles merging of multiple configuration items when loading from
// multiple configuration files.
//
// The 1st value passed in is always the previously merged one, the 2nd is the one from
// the current file. Merge into the first.
//
// Without a Merge function each file simply replaces the last.
type Merge func(interface{}, interface{}) (interface{}, error)

// Passed in the old loaded configuration then the new one, returns true if anything changed.
//
// Called after all Convert() and Merge() calls, so timestamps and whitespace changes do not
// cause a notification to be sent.
type Changed func(interface{}, interface{}) bool

// Anytime the configuration files change, this function is called.
type Notify func()

// Empty() is the only non-option function, the others can be set or left empty.
type Callers struct {
	// Returns an empty type that the YAML/JSON will be parsed into directly.
	Empty   func() interface{}
	Convert Convert
	Merge   Merge
	Changed Changed
	Notify  Notify
}

type YConf struct {
	l zerolog.Logger

	// Store the base configuration path, either a file or a directory.
	confPath string

	// How often Start() checks for changes, defaults to a minute.
	Interval time.Duration

	// So we know the type we load into.
	ca Callers

	loMut sync.RWMutex
	lo    *loaded
}
