package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/text/collate"
)

// FileStore persists tasks and tags as two whole-document JSON files.
// Every mutation reads the entire file, modifies it in memory, and
// rewrites it in full. Concurrent writers are not coordinated: two
// interleaved mutations can lose the first writer's update at
// whole-file granularity. That is a documented limitation of this
// backend for low-concurrency deployments, kept rather than upgraded.
type FileStore struct {
	tasksPath string
	tagsPath  string
	logger    *log.Logger
	collator  *collate.Collator
}

// NewFileStore creates the data directory if needed. The backing files
// themselves are created lazily as empty arrays on first use.
func NewFileStore(dir string, logger *log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		tasksPath: filepath.Join(dir, "tasks.json"),
		tagsPath:  filepath.Join(dir, "tags.json"),
		logger:    logger,
		collator:  newCollator(),
	}, nil
}

func (s *FileStore) Close() error { return nil }

// fileTask is the tolerant on-disk shape. Imported or hand-edited
// documents may be missing fields; everything optional is a pointer so
// defaults can be applied instead of rejecting the document.
type fileTask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *string    `json:"dueDate"`
	CreatedAt   *time.Time `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt"`
	Order       *int       `json:"order"`
	Tags        []string   `json:"tags"`
}

func (s *FileStore) ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte("[]\n"), 0644); err != nil {
		return fmt.Errorf("init %s: %w", path, err)
	}
	return nil
}

// readTasks loads the task document, applying defaults for missing or
// invalid fields, and self-heals the order values: if the persisted
// orders are not a dense 0..N-1 permutation the tasks are renumbered by
// their current sort position and the file is rewritten immediately.
func (s *FileStore) readTasks() ([]Task, error) {
	if err := s.ensureFile(s.tasksPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.tasksPath)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var raw []fileTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}

	tasks := make([]Task, 0, len(raw))
	repaired := false
	for i, ft := range raw {
		t := Task{
			ID:          ft.ID,
			Title:       ft.Title,
			Description: ft.Description,
			Status:      Status(ft.Status),
			DueDate:     ft.DueDate,
			UpdatedAt:   ft.UpdatedAt,
			Tags:        NormalizeTags(ft.Tags),
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
			repaired = true
		}
		if !t.Status.Valid() {
			t.Status = StatusTodo
			repaired = true
		}
		if ft.CreatedAt != nil {
			t.CreatedAt = *ft.CreatedAt
		} else {
			t.CreatedAt = time.Now().UTC()
			repaired = true
		}
		if ft.Order != nil {
			t.Order = *ft.Order
		} else {
			// Index-based fallback for imported data without orders.
			t.Order = i
			repaired = true
		}
		tasks = append(tasks, t)
	}

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	for i := range tasks {
		if tasks[i].Order != i {
			tasks[i].Order = i
			repaired = true
		}
	}

	if repaired {
		s.logger.Warn("repaired task document", "path", s.tasksPath, "tasks", len(tasks))
		if err := s.writeTasks(tasks); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *FileStore) writeTasks(tasks []Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.tasksPath, data, 0644); err != nil {
		return fmt.Errorf("write tasks file: %w", err)
	}
	return nil
}

func (s *FileStore) readTags() ([]string, error) {
	if err := s.ensureFile(s.tagsPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.tagsPath)
	if err != nil {
		return nil, fmt.Errorf("read tags file: %w", err)
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("parse tags file: %w", err)
	}
	return NormalizeTags(tags), nil
}

// writeTags persists the vocabulary in collated order so listings are
// deterministic regardless of insertion order.
func (s *FileStore) writeTags(tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	sortTags(s.collator, tags)
	data, err := json.MarshalIndent(tags, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.tagsPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write tags file: %w", err)
	}
	return tags, nil
}

// absorbTags unions names into the vocabulary, persisting only when
// something new appeared. This is the create-if-absent half of tag
// reconciliation, done inside the same logical operation as the task
// write so callers never manage the vocabulary separately.
func (s *FileStore) absorbTags(names []string) error {
	if len(names) == 0 {
		return nil
	}
	tags, err := s.readTags()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(tags))
	for _, t := range tags {
		known[t] = true
	}
	added := false
	for _, name := range names {
		if !known[name] {
			tags = append(tags, name)
			known[name] = true
			added = true
		}
	}
	if !added {
		return nil
	}
	_, err = s.writeTags(tags)
	return err
}

func (s *FileStore) ListTasks(ctx context.Context) ([]Task, error) {
	return s.readTasks()
}

func (s *FileStore) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	in, err := validateInput(in)
	if err != nil {
		return Task{}, err
	}

	tasks, err := s.readTasks()
	if err != nil {
		return Task{}, err
	}

	task := Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		DueDate:     in.DueDate,
		CreatedAt:   time.Now().UTC(),
		Order:       len(tasks),
		Tags:        NormalizeTags(in.Tags),
	}

	if err := s.absorbTags(task.Tags); err != nil {
		return Task{}, err
	}
	if err := s.writeTasks(append(tasks, task)); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *FileStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error) {
	if err := validatePatch(patch); err != nil {
		return Task{}, err
	}

	tasks, err := s.readTasks()
	if err != nil {
		return Task{}, err
	}
	at := -1
	for i := range tasks {
		if tasks[i].ID == id {
			at = i
			break
		}
	}
	if at < 0 {
		return Task{}, &NotFoundError{Entity: "task", Key: id}
	}

	changed := applyPatch(&tasks[at], patch)

	if patch.Tags.Present() {
		var next []string
		if !patch.Tags.IsNull() {
			next = NormalizeTags(patch.Tags.Value())
		}
		if !sameTagSet(tasks[at].Tags, next) {
			tasks[at].Tags = next
			changed = true
			if err := s.absorbTags(next); err != nil {
				return Task{}, err
			}
		}
	}

	if patch.Order.Present() {
		ids := make([]string, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		target := clamp(patch.Order.Value(), 0, len(ids)-1)
		if target != at {
			moved := removeString(ids, id)
			moved = insertString(moved, target, id)
			byID := make(map[string]int, len(moved))
			for i, mid := range moved {
				byID[mid] = i
			}
			for i := range tasks {
				if tasks[i].Order != byID[tasks[i].ID] {
					tasks[i].Order = byID[tasks[i].ID]
				}
			}
			sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
			for i := range tasks {
				if tasks[i].ID == id {
					at = i
					break
				}
			}
			changed = true
		}
	}

	if changed {
		now := time.Now().UTC()
		tasks[at].UpdatedAt = &now
		if err := s.writeTasks(tasks); err != nil {
			return Task{}, err
		}
	}
	return tasks[at], nil
}

func (s *FileStore) DeleteTask(ctx context.Context, id string) (Task, error) {
	tasks, err := s.readTasks()
	if err != nil {
		return Task{}, err
	}
	at := -1
	for i := range tasks {
		if tasks[i].ID == id {
			at = i
			break
		}
	}
	if at < 0 {
		return Task{}, &NotFoundError{Entity: "task", Key: id}
	}

	removed := tasks[at]
	tasks = append(tasks[:at], tasks[at+1:]...)
	for i := range tasks {
		tasks[i].Order = i
	}
	if err := s.writeTasks(tasks); err != nil {
		return Task{}, err
	}
	return removed, nil
}

func (s *FileStore) ReorderTasks(ctx context.Context, orderedIDs []string) ([]Task, error) {
	tasks, err := s.readTasks()
	if err != nil {
		return nil, err
	}

	changes := Reindex(tasks, orderedIDs)
	if len(changes) == 0 {
		return tasks, nil
	}

	byID := make(map[string]int, len(changes))
	for _, c := range changes {
		byID[c.ID] = c.Order
	}
	now := time.Now().UTC()
	for i := range tasks {
		if order, ok := byID[tasks[i].ID]; ok {
			tasks[i].Order = order
			tasks[i].UpdatedAt = &now
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })

	if err := s.writeTasks(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *FileStore) ListTags(ctx context.Context) ([]string, error) {
	tags, err := s.readTags()
	if err != nil {
		return nil, err
	}
	sortTags(s.collator, tags)
	return tags, nil
}

func (s *FileStore) CreateTag(ctx context.Context, name string) (CreateTagResult, error) {
	name, err := validTagName(name)
	if err != nil {
		return CreateTagResult{}, err
	}
	tags, err := s.readTags()
	if err != nil {
		return CreateTagResult{}, err
	}
	for _, t := range tags {
		if t == name {
			sortTags(s.collator, tags)
			return CreateTagResult{Created: false, Tags: tags}, nil
		}
	}
	tags, err = s.writeTags(append(tags, name))
	if err != nil {
		return CreateTagResult{}, err
	}
	return CreateTagResult{Created: true, Tags: tags}, nil
}

func (s *FileStore) RenameTag(ctx context.Context, current, next string) (RenameTagResult, error) {
	next, err := validTagName(next)
	if err != nil {
		return RenameTagResult{}, err
	}

	tags, err := s.readTags()
	if err != nil {
		return RenameTagResult{}, err
	}
	at := -1
	exists := false
	for i, t := range tags {
		if t == current {
			at = i
		}
		if t == next {
			exists = true
		}
	}
	if at < 0 {
		return RenameTagResult{}, &NotFoundError{Entity: "tag", Key: current}
	}
	if current == next {
		sortTags(s.collator, tags)
		return RenameTagResult{Name: next, Tags: tags}, nil
	}
	if exists {
		return RenameTagResult{}, &ConflictError{Entity: "tag", Name: next}
	}

	tags[at] = next
	tags, err = s.writeTags(tags)
	if err != nil {
		return RenameTagResult{}, err
	}

	// Relabel every task association in the same logical operation.
	tasks, err := s.readTasks()
	if err != nil {
		return RenameTagResult{}, err
	}
	touched := false
	for i := range tasks {
		for j, tag := range tasks[i].Tags {
			if tag == current {
				tasks[i].Tags[j] = next
				touched = true
			}
		}
		tasks[i].Tags = NormalizeTags(tasks[i].Tags)
	}
	if touched {
		if err := s.writeTasks(tasks); err != nil {
			return RenameTagResult{}, err
		}
	}
	return RenameTagResult{Name: next, Tags: tags}, nil
}

func (s *FileStore) DeleteTag(ctx context.Context, name string) ([]string, error) {
	tags, err := s.readTags()
	if err != nil {
		return nil, err
	}
	at := -1
	for i, t := range tags {
		if t == name {
			at = i
			break
		}
	}
	if at < 0 {
		return nil, &NotFoundError{Entity: "tag", Key: name}
	}

	tags = append(tags[:at], tags[at+1:]...)
	tags, err = s.writeTags(tags)
	if err != nil {
		return nil, err
	}

	tasks, err := s.readTasks()
	if err != nil {
		return nil, err
	}
	touched := false
	for i := range tasks {
		next := removeString(tasks[i].Tags, name)
		if len(next) != len(tasks[i].Tags) {
			tasks[i].Tags = next
			touched = true
		}
	}
	if touched {
		if err := s.writeTasks(tasks); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

func validTagName(name string) (string, error) {
	trimmed := NormalizeTags([]string{name})
	if len(trimmed) == 0 {
		return "", &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return trimmed[0], nil
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func insertString(list []string, at int, v string) []string {
	if at < 0 {
		at = 0
	}
	if at > len(list) {
		at = len(list)
	}
	list = append(list, "")
	copy(list[at+1:], list[at:])
	list[at] = v
	return list
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
