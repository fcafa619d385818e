package types

import (
	"context"
	"errors"

	"tagger/tags"
)

var ErrShutdown = errors.New("Shutdown")

// type Store interface {{{

// The document store holding the tags of each entity.
//
// The store owns the entities, we only ever read and write their tags field.
type Store interface {
	// Returns the stored tags of the entity.
	//
	// The bool is false if the tags field is unset, which is not an error.
	ReadTags(context.Context, tags.Entity) (tags.Tags, bool, error)

	// Replaces the stored tags of the entity.
	WriteTags(context.Context, tags.Entity, tags.Tags) error

	// Unsets the tags field of the entity.
	ClearTags(context.Context, tags.Entity) error

	// Lists every entity within the scope.
	//
	// Returns an error wrapping tags.ErrScopeNotFound if there is no such scope.
	ListScope(context.Context, string) ([]tags.Entity, error)

	// Lists every scope.
	Scopes(context.Context) ([]string, error)

	// For shutting down the Store.
	//
	// Safe to call multiple times, but once called everything else will return ErrShutdown
	Close()
} // }}}

// Maps whatever the host hands us (a live UI object, a document, etc) to the entity handle.
type HandleResolver func(interface{}) (tags.Entity, error)

// Implemented by the stores that can create entities themselves, rather than only
// tagging entities the host created.
type Creator interface {
	// Creates the entity (and its scope if needed) with the given tags in one step,
	// leaving them unset if there are none.
	//
	// Creating an entity that already exists is not an error, its tags are replaced.
	CreateEntity(context.Context, tags.Entity, tags.Tags) error
}
