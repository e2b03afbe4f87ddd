package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/text/collate"
)

//go:embed schema.sql
var schema string

const sqlTimeLayout = time.RFC3339Nano

// SQLConfig tunes the transactional store.
type SQLConfig struct {
	Path string
	// SlowQueryThreshold marks operations slower than this in the
	// metrics. Zero disables slow-query tracking.
	SlowQueryThreshold time.Duration
	Retry              RetryPolicy
}

// SQLStore implements Store against a sqlite schema with a task/tag
// join table. Every operation that touches the ordering invariant or
// more than one row runs in a single multi-statement transaction, so
// a retried operation either fully committed or left no trace.
type SQLStore struct {
	db       *sql.DB
	logger   *log.Logger
	metrics  *Metrics
	retry    RetryPolicy
	slow     time.Duration
	collator *collate.Collator
}

// OpenSQL opens (creating if needed) the sqlite database and applies
// the embedded schema. WAL mode and a busy timeout are applied
// best-effort to reduce lock contention; failing to apply them is
// logged, not fatal.
func OpenSQL(cfg SQLConfig, logger *log.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warn("pragma not applied", "pragma", pragma, "err", err)
		}
	}
	return &SQLStore{
		db:       db,
		logger:   logger,
		metrics:  &Metrics{},
		retry:    cfg.Retry,
		slow:     cfg.SlowQueryThreshold,
		collator: newCollator(),
	}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// Metrics returns the store's observability counters for a health
// endpoint.
func (s *SQLStore) Metrics() MetricsSnapshot { return s.metrics.Snapshot() }

// run wraps an operation with instrumentation, the retry loop, and a
// transaction.
func (s *SQLStore) run(ctx context.Context, op, model, action string, write bool, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	err := runWithRetry(s.retry, s.metrics, op, write, func() error {
		return s.withTx(ctx, fn)
	})
	if d := time.Since(start); s.slow > 0 && d > s.slow {
		s.metrics.recordSlowQuery(op, model, action, d)
		s.logger.Warn("slow operation", "op", op, "duration", d)
	}
	return err
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.metrics.recordTransaction()
	return nil
}

func (s *SQLStore) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := s.run(ctx, "ListTasks", "task", "findMany", false, func(tx *sql.Tx) error {
		var err error
		tasks, err = loadTasks(ctx, tx, s.collator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *SQLStore) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	in, err := validateInput(in)
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
		Tags:        NormalizeTags(in.Tags),
	}

	err = s.run(ctx, "CreateTask", "task", "create", true, func(tx *sql.Tx) error {
		// Assign the tail position inside the same transaction that
		// reads the current maximum.
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM tasks`)
		if err := row.Scan(&task.Order); err != nil {
			return fmt.Errorf("next position: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, title, description, status, due_date, created_at, updated_at, position)
			VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
			task.ID, task.Title, task.Description, string(task.Status),
			nullString(task.DueDate), task.CreatedAt.Format(sqlTimeLayout), task.Order,
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return setTaskTags(ctx, tx, task.ID, task.Tags)
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error) {
	if err := validatePatch(patch); err != nil {
		return Task{}, err
	}

	var out Task
	err := s.run(ctx, "UpdateTask", "task", "update", true, func(tx *sql.Tx) error {
		tasks, err := loadTasks(ctx, tx, s.collator)
		if err != nil {
			return err
		}
		at := -1
		for i := range tasks {
			if tasks[i].ID == id {
				at = i
				break
			}
		}
		if at < 0 {
			return &NotFoundError{Entity: "task", Key: id}
		}

		task := tasks[at]
		changed := applyPatch(&task, patch)

		if patch.Tags.Present() {
			var next []string
			if !patch.Tags.IsNull() {
				next = NormalizeTags(patch.Tags.Value())
			}
			if !sameTagSet(task.Tags, next) {
				task.Tags = next
				changed = true
				if err := setTaskTags(ctx, tx, task.ID, next); err != nil {
					return err
				}
			}
		}

		if patch.Order.Present() && clamp(patch.Order.Value(), 0, len(tasks)-1) != task.Order {
			target := clamp(patch.Order.Value(), 0, len(tasks)-1)
			ids := make([]string, 0, len(tasks))
			for _, t := range tasks {
				if t.ID != id {
					ids = append(ids, t.ID)
				}
			}
			ids = insertString(ids, target, id)
			changes := Reindex(tasks, ids)
			for _, c := range changes {
				if c.ID == task.ID {
					task.Order = c.Order
					continue
				}
				if _, err := tx.ExecContext(ctx, `UPDATE tasks SET position = ? WHERE id = ?`, c.Order, c.ID); err != nil {
					return fmt.Errorf("update position: %w", err)
				}
			}
			changed = true
		}

		if !changed {
			out = task
			return nil
		}

		now := time.Now().UTC()
		task.UpdatedAt = &now
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET title = ?, description = ?, status = ?, due_date = ?, updated_at = ?, position = ?
			WHERE id = ?`,
			task.Title, task.Description, string(task.Status),
			nullString(task.DueDate), now.Format(sqlTimeLayout), task.Order, task.ID,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if err := checkAffected(res, "task", id); err != nil {
			return err
		}
		out = task
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

func (s *SQLStore) DeleteTask(ctx context.Context, id string) (Task, error) {
	var out Task
	err := s.run(ctx, "DeleteTask", "task", "delete", true, func(tx *sql.Tx) error {
		tasks, err := loadTasks(ctx, tx, s.collator)
		if err != nil {
			return err
		}
		at := -1
		for i := range tasks {
			if tasks[i].ID == id {
				at = i
				break
			}
		}
		if at < 0 {
			return &NotFoundError{Entity: "task", Key: id}
		}
		out = tasks[at]

		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if err := checkAffected(res, "task", id); err != nil {
			return err
		}

		// Close the gap so the order stays a dense permutation.
		remaining := append(tasks[:at:at], tasks[at+1:]...)
		for _, c := range Reindex(remaining, nil) {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET position = ? WHERE id = ?`, c.Order, c.ID); err != nil {
				return fmt.Errorf("update position: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

func (s *SQLStore) ReorderTasks(ctx context.Context, orderedIDs []string) ([]Task, error) {
	var out []Task
	err := s.run(ctx, "ReorderTasks", "task", "reorder", true, func(tx *sql.Tx) error {
		tasks, err := loadTasks(ctx, tx, s.collator)
		if err != nil {
			return err
		}

		changes := Reindex(tasks, orderedIDs)
		if len(changes) > 0 {
			// One update per changed row inside the transaction. The
			// transaction scales with task count; acceptable at this
			// backend's scale.
			now := time.Now().UTC()
			byID := make(map[string]int, len(changes))
			for _, c := range changes {
				byID[c.ID] = c.Order
				if _, err := tx.ExecContext(ctx,
					`UPDATE tasks SET position = ?, updated_at = ? WHERE id = ?`,
					c.Order, now.Format(sqlTimeLayout), c.ID,
				); err != nil {
					return fmt.Errorf("update position: %w", err)
				}
			}
			for i := range tasks {
				if order, ok := byID[tasks[i].ID]; ok {
					tasks[i].Order = order
					tasks[i].UpdatedAt = &now
				}
			}
			sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
		}
		out = tasks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) ListTags(ctx context.Context) ([]string, error) {
	var tags []string
	err := s.run(ctx, "ListTags", "tag", "findMany", false, func(tx *sql.Tx) error {
		var err error
		tags, err = loadTagNames(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortTags(s.collator, tags)
	return tags, nil
}

func (s *SQLStore) CreateTag(ctx context.Context, name string) (CreateTagResult, error) {
	name, err := validTagName(name)
	if err != nil {
		return CreateTagResult{}, err
	}

	var result CreateTagResult
	err = s.run(ctx, "CreateTag", "tag", "create", true, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name)
		if err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		result.Created = affected > 0
		result.Tags, err = loadTagNames(ctx, tx)
		return err
	})
	if err != nil {
		return CreateTagResult{}, err
	}
	sortTags(s.collator, result.Tags)
	return result, nil
}

func (s *SQLStore) RenameTag(ctx context.Context, current, next string) (RenameTagResult, error) {
	next, err := validTagName(next)
	if err != nil {
		return RenameTagResult{}, err
	}

	var result RenameTagResult
	err = s.run(ctx, "RenameTag", "tag", "update", true, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, current).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Entity: "tag", Key: current}
		}
		if err != nil {
			return fmt.Errorf("lookup tag: %w", err)
		}

		if current != next {
			var exists int
			err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE name = ?`, next).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check tag name: %w", err)
			}
			if exists > 0 {
				return &ConflictError{Entity: "tag", Name: next}
			}
			// Join rows reference the tag id, so the single UPDATE
			// relabels every task association atomically.
			if _, err := tx.ExecContext(ctx, `UPDATE tags SET name = ? WHERE id = ?`, next, id); err != nil {
				return fmt.Errorf("rename tag: %w", err)
			}
		}

		result.Name = next
		result.Tags, err = loadTagNames(ctx, tx)
		return err
	})
	if err != nil {
		return RenameTagResult{}, err
	}
	sortTags(s.collator, result.Tags)
	return result, nil
}

func (s *SQLStore) DeleteTag(ctx context.Context, name string) ([]string, error) {
	var tags []string
	err := s.run(ctx, "DeleteTag", "tag", "delete", true, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		if err := checkAffected(res, "tag", name); err != nil {
			return err
		}
		// task_tags rows cascade with the tag row; tasks are untouched.
		tags, err = loadTagNames(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortTags(s.collator, tags)
	return tags, nil
}

func loadTasks(ctx context.Context, tx *sql.Tx, c *collate.Collator) ([]Task, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, title, description, status, due_date, created_at, updated_at, position
		FROM tasks ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		var t Task
		var status, created string
		var due, updated sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &due, &created, &updated, &t.Order); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = Status(status)
		if due.Valid {
			v := due.String
			t.DueDate = &v
		}
		if t.CreatedAt, err = time.Parse(sqlTimeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if updated.Valid {
			u, err := time.Parse(sqlTimeLayout, updated.String)
			if err != nil {
				return nil, fmt.Errorf("parse updated_at: %w", err)
			}
			t.UpdatedAt = &u
		}
		t.Tags = []string{}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := tx.QueryContext(ctx, `
		SELECT tt.task_id, t.name
		FROM task_tags tt JOIN tags t ON t.id = tt.tag_id`)
	if err != nil {
		return nil, fmt.Errorf("query task tags: %w", err)
	}
	defer tagRows.Close()

	byTask := make(map[string][]string)
	for tagRows.Next() {
		var taskID, name string
		if err := tagRows.Scan(&taskID, &name); err != nil {
			return nil, fmt.Errorf("scan task tag: %w", err)
		}
		byTask[taskID] = append(byTask[taskID], name)
	}
	if err := tagRows.Err(); err != nil {
		return nil, err
	}
	for i := range tasks {
		if names, ok := byTask[tasks[i].ID]; ok {
			sortTags(c, names)
			tasks[i].Tags = names
		}
	}
	return tasks, nil
}

func loadTagNames(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// setTaskTags replaces a task's associations, creating unknown tags in
// the vocabulary as part of the same transaction.
func setTaskTags(ctx context.Context, tx *sql.Tx, taskID string, names []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear task tags: %w", err)
	}
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("ensure tag: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_tags (task_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?`, taskID, name); err != nil {
			return fmt.Errorf("link tag: %w", err)
		}
	}
	return nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// checkAffected maps sqlite's silent zero-rows result into the store's
// NotFound condition so no engine-specific shape leaks to callers.
func checkAffected(res sql.Result, entity, key string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Entity: entity, Key: key}
	}
	return nil
}
