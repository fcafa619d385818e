package tagmanager

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"tagger/tags"
	"tagger/types"
	"tagger/yconf"
)

type conf struct {
	// The scene queried when none is given.
	Scene string `yaml:"scene"`

	// Resolve tag rules ({#}, {id}) when tags are written, defaults to true.
	Rules *bool `yaml:"rules"`

	// Used by the command line when not told otherwise, defaults to false.
	CaseInsensitive *bool `yaml:"caseinsensitive"`

	// Named queries.
	Queries tags.ConfQueries `yaml:"queries"`

	// Loaded from Queries by the yconf Convert.
	saved tags.SavedQueries
}

// type Op int {{{

// A tag mutation.
type Op int

const (
	// Replace the tags.
	OpSet Op = iota

	// Union with the stored tags.
	OpAdd

	// Difference from the stored tags.
	OpRemove

	// Remove the given tags that are stored, add those that are not.
	OpToggle

	// Unset the tags, ignoring any input.
	OpClear
) // }}}

// type QueryOptions struct {{{

type QueryOptions struct {
	tags.MatchOptions

	// Search every scene, the result is returned in Result.Scopes
	AllScenes bool

	// Search only these entities, no scene is listed.
	Objects []tags.Entity

	// Skipped before any matching.
	Ignore []tags.Entity

	// The scene to search, defaults to the configured scene.
	SceneID string

	// Optional, maps each match to the handle the caller wants back.
	Project func(tags.Entity) tags.Entity
} // }}}

// type Result struct {{{

// Entities is filled for a single scene (or Objects) query, Scopes for AllScenes.
type Result struct {
	Entities []tags.Entity

	// Only scenes with at least one match are included.
	Scopes map[string][]tags.Entity
} // }}}

// type TagManager struct {{{

type TagManager struct {
	l zerolog.Logger

	st types.Store

	// Maps host objects to entity handles.
	resolver types.HandleResolver

	rules tags.Rules

	// nil is fine, recording is then a no-op.
	metrics *Metrics

	// Passed to each tags.Batch, nil uses random UUIDs.
	newID func() string

	yc *yconf.YConf

	// Stores the current *conf
	//
	// An atomic as the background configuration watch can replace it while we are running.
	co atomic.Value
} // }}}

// Option configures a TagManager.
type Option func(*TagManager)
