// Package store implements the persistent task-ordering and
// tag-consistency core behind the task list: a common interface with
// two interchangeable backends, one backed by whole-file JSON
// documents and one by a transactional sqlite schema.
package store

import "context"

// Store is the common contract both backends satisfy. One instance is
// constructed at startup and shared by all requests; implementations
// return the same canonical Task and tag shapes regardless of internal
// representation.
type Store interface {
	// ListTasks returns all tasks ascending by order. The order values
	// of the result are always the dense set {0..N-1}.
	ListTasks(ctx context.Context) ([]Task, error)

	// CreateTask appends a task at the tail of the order.
	CreateTask(ctx context.Context, in TaskInput) (Task, error)

	// UpdateTask applies a partial update. Absent patch fields leave
	// the stored field untouched.
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error)

	// DeleteTask removes a task and returns the removed record. The
	// remaining tasks are renumbered to keep the order dense.
	DeleteTask(ctx context.Context, id string) (Task, error)

	// ReorderTasks applies a caller-supplied order. Ids of tasks that
	// no longer exist are ignored; tasks not mentioned keep their
	// relative order after the mentioned ones.
	ReorderTasks(ctx context.Context, orderedIDs []string) ([]Task, error)

	// ListTags returns the tag vocabulary in locale-collated order.
	ListTags(ctx context.Context) ([]string, error)

	// CreateTag adds a name to the vocabulary. Adding an existing name
	// succeeds with Created=false.
	CreateTag(ctx context.Context, name string) (CreateTagResult, error)

	// RenameTag relabels a tag everywhere it is referenced. Renaming
	// onto a different existing name fails with ErrConflict; renaming
	// a tag to itself is a no-op success.
	RenameTag(ctx context.Context, current, next string) (RenameTagResult, error)

	// DeleteTag removes a tag from the vocabulary and from every task
	// that referenced it, and returns the remaining vocabulary.
	DeleteTag(ctx context.Context, name string) ([]string, error)

	Close() error
}
