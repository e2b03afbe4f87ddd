package store

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for due dates. Due dates carry no time
// component.
const DateLayout = "2006-01-02"

// Status is the closed set of task states.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusPending    Status = "pending"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusWaiting, StatusPending, StatusDone:
		return true
	}
	return false
}

// Task is the canonical shape returned by every store operation,
// identical across backends.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	DueDate     *string    `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt"`
	Order       int        `json:"order"`
	Tags        []string   `json:"tags"`
}

// TaskInput carries the caller-supplied fields for task creation. The
// server assigns id, createdAt and order.
type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	DueDate     *string  `json:"dueDate"`
	Tags        []string `json:"tags"`
}

// TaskPatch carries a partial update. Each field is tri-state: absent
// fields leave the stored value untouched, an explicit null clears the
// field where clearing is meaningful, and a value replaces it.
type TaskPatch struct {
	Title       Optional[string]   `json:"title"`
	Description Optional[string]   `json:"description"`
	Status      Optional[Status]   `json:"status"`
	DueDate     Optional[string]   `json:"dueDate"`
	Order       Optional[int]      `json:"order"`
	Tags        Optional[[]string] `json:"tags"`
}

// CreateTagResult reports whether the tag was newly created alongside
// the full vocabulary. Creating an existing tag is not an error.
type CreateTagResult struct {
	Created bool     `json:"created"`
	Tags    []string `json:"tags"`
}

// RenameTagResult carries the tag's final name and the full vocabulary.
type RenameTagResult struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func validateInput(in TaskInput) (TaskInput, error) {
	if in.Title == "" {
		return in, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if !in.Status.Valid() {
		return in, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.DueDate != nil {
		if _, err := time.Parse(DateLayout, *in.DueDate); err != nil {
			return in, &ValidationError{Field: "dueDate", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", *in.DueDate)}
		}
	}
	return in, nil
}

func validatePatch(p TaskPatch) error {
	if p.Title.Present() {
		if p.Title.IsNull() {
			return &ValidationError{Field: "title", Reason: "cannot be null"}
		}
		if p.Title.Value() == "" {
			return &ValidationError{Field: "title", Reason: "must not be empty"}
		}
	}
	if p.Description.Present() && p.Description.IsNull() {
		return &ValidationError{Field: "description", Reason: "cannot be null"}
	}
	if p.Status.Present() {
		if p.Status.IsNull() {
			return &ValidationError{Field: "status", Reason: "cannot be null"}
		}
		if !p.Status.Value().Valid() {
			return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", p.Status.Value())}
		}
	}
	if p.DueDate.Present() && !p.DueDate.IsNull() {
		if _, err := time.Parse(DateLayout, p.DueDate.Value()); err != nil {
			return &ValidationError{Field: "dueDate", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", p.DueDate.Value())}
		}
	}
	if p.Order.Present() && p.Order.IsNull() {
		return &ValidationError{Field: "order", Reason: "cannot be null"}
	}
	return nil
}

// applyPatch applies p to t in place and reports whether anything
// changed. Order and tags are handled by the backends; this covers the
// scalar fields only.
func applyPatch(t *Task, p TaskPatch) bool {
	changed := false
	if p.Title.Present() && t.Title != p.Title.Value() {
		t.Title = p.Title.Value()
		changed = true
	}
	if p.Description.Present() && t.Description != p.Description.Value() {
		t.Description = p.Description.Value()
		changed = true
	}
	if p.Status.Present() && t.Status != p.Status.Value() {
		t.Status = p.Status.Value()
		changed = true
	}
	if p.DueDate.Present() {
		switch {
		case p.DueDate.IsNull():
			if t.DueDate != nil {
				t.DueDate = nil
				changed = true
			}
		case t.DueDate == nil || *t.DueDate != p.DueDate.Value():
			v := p.DueDate.Value()
			t.DueDate = &v
			changed = true
		}
	}
	return changed
}
