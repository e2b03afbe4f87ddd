package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// runStoreSuite exercises the behavior both backends must share. Each
// backend's test file calls it with its own factory; a fresh store is
// opened per subtest.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	mustCreate := func(t *testing.T, s Store, title string, tags ...string) Task {
		t.Helper()
		task, err := s.CreateTask(ctx, TaskInput{Title: title, Tags: tags})
		if err != nil {
			t.Fatalf("create %q: %v", title, err)
		}
		return task
	}

	mustList := func(t *testing.T, s Store) []Task {
		t.Helper()
		tasks, err := s.ListTasks(ctx)
		if err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		return tasks
	}

	assertDense := func(t *testing.T, tasks []Task) {
		t.Helper()
		for i, task := range tasks {
			if task.Order != i {
				t.Fatalf("order not dense at %d: %+v", i, tasks)
			}
		}
	}

	titles := func(tasks []Task) []string {
		out := make([]string, len(tasks))
		for i, task := range tasks {
			out[i] = task.Title
		}
		return out
	}

	t.Run("CreateAppendsAtTail", func(t *testing.T) {
		s := open(t)
		a := mustCreate(t, s, "A")
		b := mustCreate(t, s, "B")
		c := mustCreate(t, s, "C")

		if a.Order != 0 || b.Order != 1 || c.Order != 2 {
			t.Fatalf("orders = %d,%d,%d, want 0,1,2", a.Order, b.Order, c.Order)
		}
		if a.UpdatedAt != nil {
			t.Fatalf("updatedAt should be nil until first mutation, got %v", a.UpdatedAt)
		}

		tasks := mustList(t, s)
		assertDense(t, tasks)
		if got := titles(tasks); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
			t.Fatalf("titles = %v", got)
		}
	})

	t.Run("ReorderScenario", func(t *testing.T) {
		s := open(t)
		a := mustCreate(t, s, "A")
		b := mustCreate(t, s, "B")
		c := mustCreate(t, s, "C")

		tasks, err := s.ReorderTasks(ctx, []string{c.ID, a.ID, b.ID})
		if err != nil {
			t.Fatalf("reorder: %v", err)
		}
		assertDense(t, tasks)
		if got := titles(tasks); !reflect.DeepEqual(got, []string{"C", "A", "B"}) {
			t.Fatalf("titles after reorder = %v", got)
		}

		tasks = mustList(t, s)
		assertDense(t, tasks)
		if got := titles(tasks); !reflect.DeepEqual(got, []string{"C", "A", "B"}) {
			t.Fatalf("titles after list = %v", got)
		}
	})

	t.Run("ReorderPartialInput", func(t *testing.T) {
		s := open(t)
		a := mustCreate(t, s, "A")
		mustCreate(t, s, "B")
		c := mustCreate(t, s, "C")
		mustCreate(t, s, "D")

		tasks, err := s.ReorderTasks(ctx, []string{c.ID, a.ID})
		if err != nil {
			t.Fatalf("reorder: %v", err)
		}
		assertDense(t, tasks)
		if got := titles(tasks); !reflect.DeepEqual(got, []string{"C", "A", "B", "D"}) {
			t.Fatalf("titles = %v, want [C A B D]", got)
		}
	})

	t.Run("ReorderToleratesStaleIDs", func(t *testing.T) {
		s := open(t)
		a := mustCreate(t, s, "A")
		b := mustCreate(t, s, "B")

		tasks, err := s.ReorderTasks(ctx, []string{"no-such-task", b.ID, a.ID})
		if err != nil {
			t.Fatalf("reorder with stale id: %v", err)
		}
		assertDense(t, tasks)
		if got := titles(tasks); !reflect.DeepEqual(got, []string{"B", "A"}) {
			t.Fatalf("titles = %v", got)
		}
	})

	t.Run("DeleteKeepsOrderDense", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "A")
		b := mustCreate(t, s, "B")
		mustCreate(t, s, "C")

		removed, err := s.DeleteTask(ctx, b.ID)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if removed.Title != "B" {
			t.Fatalf("removed = %+v", removed)
		}

		tasks := mustList(t, s)
		assertDense(t, tasks)
		if got := titles(tasks); !reflect.DeepEqual(got, []string{"A", "C"}) {
			t.Fatalf("titles = %v", got)
		}
	})

	t.Run("TagDedupeOnCreate", func(t *testing.T) {
		s := open(t)
		task := mustCreate(t, s, "tagged", "ops", "ops", " Ops")
		if !reflect.DeepEqual(task.Tags, []string{"ops", "Ops"}) {
			t.Fatalf("tags = %v, want [ops Ops]", task.Tags)
		}

		tags, err := s.ListTags(ctx)
		if err != nil {
			t.Fatalf("list tags: %v", err)
		}
		if !sameTagSet(tags, []string{"ops", "Ops"}) {
			t.Fatalf("vocabulary = %v", tags)
		}
	})

	t.Run("ImplicitTagCreationOnUpdate", func(t *testing.T) {
		s := open(t)
		task := mustCreate(t, s, "plain")

		updated, err := s.UpdateTask(ctx, task.ID, TaskPatch{Tags: Some([]string{"fresh"})})
		if err != nil {
			t.Fatalf("update tags: %v", err)
		}
		if !reflect.DeepEqual(updated.Tags, []string{"fresh"}) {
			t.Fatalf("tags = %v", updated.Tags)
		}

		tags, err := s.ListTags(ctx)
		if err != nil {
			t.Fatalf("list tags: %v", err)
		}
		if !sameTagSet(tags, []string{"fresh"}) {
			t.Fatalf("vocabulary = %v", tags)
		}
	})

	t.Run("CreateTagIdempotent", func(t *testing.T) {
		s := open(t)

		first, err := s.CreateTag(ctx, "alpha")
		if err != nil {
			t.Fatalf("create tag: %v", err)
		}
		if !first.Created || !reflect.DeepEqual(first.Tags, []string{"alpha"}) {
			t.Fatalf("first create = %+v", first)
		}

		second, err := s.CreateTag(ctx, "alpha")
		if err != nil {
			t.Fatalf("repeat create tag: %v", err)
		}
		if second.Created || !reflect.DeepEqual(second.Tags, []string{"alpha"}) {
			t.Fatalf("second create = %+v", second)
		}
	})

	t.Run("RenameConflict", func(t *testing.T) {
		s := open(t)
		if _, err := s.CreateTag(ctx, "alpha"); err != nil {
			t.Fatalf("create alpha: %v", err)
		}
		if _, err := s.CreateTag(ctx, "beta"); err != nil {
			t.Fatalf("create beta: %v", err)
		}

		_, err := s.RenameTag(ctx, "alpha", "beta")
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}

		tags, err := s.ListTags(ctx)
		if err != nil {
			t.Fatalf("list tags: %v", err)
		}
		if !sameTagSet(tags, []string{"alpha", "beta"}) {
			t.Fatalf("vocabulary mutated by failed rename: %v", tags)
		}
	})

	t.Run("RenameNoop", func(t *testing.T) {
		s := open(t)
		if _, err := s.CreateTag(ctx, "alpha"); err != nil {
			t.Fatalf("create alpha: %v", err)
		}

		result, err := s.RenameTag(ctx, "alpha", "alpha")
		if err != nil {
			t.Fatalf("self-rename should succeed: %v", err)
		}
		if result.Name != "alpha" || !reflect.DeepEqual(result.Tags, []string{"alpha"}) {
			t.Fatalf("result = %+v", result)
		}
	})

	t.Run("RenameRelabelsTaskAssociations", func(t *testing.T) {
		s := open(t)
		task := mustCreate(t, s, "tagged", "old", "other")

		result, err := s.RenameTag(ctx, "old", "new")
		if err != nil {
			t.Fatalf("rename: %v", err)
		}
		if result.Name != "new" {
			t.Fatalf("result = %+v", result)
		}

		tasks := mustList(t, s)
		if !sameTagSet(tasks[0].Tags, []string{"new", "other"}) {
			t.Fatalf("task tags after rename = %v", tasks[0].Tags)
		}
		if len(tasks[0].Tags) != 2 {
			t.Fatalf("tag set changed size: %v", tasks[0].Tags)
		}
		_ = task
	})

	t.Run("RenameMissingTag", func(t *testing.T) {
		s := open(t)
		_, err := s.RenameTag(ctx, "ghost", "anything")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("CascadeDelete", func(t *testing.T) {
		s := open(t)
		task := mustCreate(t, s, "tagged", "x", "y")

		tags, err := s.DeleteTag(ctx, "x")
		if err != nil {
			t.Fatalf("delete tag: %v", err)
		}
		if !sameTagSet(tags, []string{"y"}) {
			t.Fatalf("vocabulary = %v", tags)
		}

		tasks := mustList(t, s)
		if !reflect.DeepEqual(tasks[0].Tags, []string{"y"}) {
			t.Fatalf("task tags = %v, want [y]", tasks[0].Tags)
		}
		_ = task
	})

	t.Run("DeleteMissingTag", func(t *testing.T) {
		s := open(t)
		_, err := s.DeleteTag(ctx, "ghost")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("NoDanglingReferences", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "one", "a", "b")
		mustCreate(t, s, "two", "b", "c")
		if _, err := s.DeleteTag(ctx, "b"); err != nil {
			t.Fatalf("delete tag: %v", err)
		}
		if _, err := s.RenameTag(ctx, "a", "a2"); err != nil {
			t.Fatalf("rename tag: %v", err)
		}

		tags, err := s.ListTags(ctx)
		if err != nil {
			t.Fatalf("list tags: %v", err)
		}
		vocab := make(map[string]bool, len(tags))
		for _, name := range tags {
			vocab[name] = true
		}
		for _, task := range mustList(t, s) {
			for _, name := range task.Tags {
				if !vocab[name] {
					t.Fatalf("task %q references %q outside vocabulary %v", task.Title, name, tags)
				}
			}
		}
	})

	t.Run("PartialUpdatePreservesUntouchedFields", func(t *testing.T) {
		s := open(t)
		due := "2026-09-15"
		created, err := s.CreateTask(ctx, TaskInput{
			Title:       "full",
			Description: "details",
			Status:      StatusWaiting,
			DueDate:     &due,
			Tags:        []string{"keep"},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		updated, err := s.UpdateTask(ctx, created.ID, TaskPatch{Status: Some(StatusDone)})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		if updated.Status != StatusDone {
			t.Fatalf("status = %q", updated.Status)
		}
		if updated.UpdatedAt == nil {
			t.Fatal("updatedAt should be set after a mutation")
		}
		if updated.Title != created.Title || updated.Description != created.Description {
			t.Fatalf("scalar fields changed: %+v", updated)
		}
		if updated.DueDate == nil || *updated.DueDate != due {
			t.Fatalf("dueDate changed: %v", updated.DueDate)
		}
		if !reflect.DeepEqual(updated.Tags, created.Tags) {
			t.Fatalf("tags changed: %v -> %v", created.Tags, updated.Tags)
		}
		if updated.Order != created.Order {
			t.Fatalf("order changed: %d -> %d", created.Order, updated.Order)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Fatalf("createdAt changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
		}
	})

	t.Run("NullClearsDueDate", func(t *testing.T) {
		s := open(t)
		due := "2026-09-15"
		created, err := s.CreateTask(ctx, TaskInput{Title: "dated", DueDate: &due})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		// An absent dueDate leaves the stored value alone.
		updated, err := s.UpdateTask(ctx, created.ID, TaskPatch{Title: Some("renamed")})
		if err != nil {
			t.Fatalf("update title: %v", err)
		}
		if updated.DueDate == nil || *updated.DueDate != due {
			t.Fatalf("absent key cleared dueDate: %v", updated.DueDate)
		}

		// An explicit null clears it.
		updated, err = s.UpdateTask(ctx, created.ID, TaskPatch{DueDate: Null[string]()})
		if err != nil {
			t.Fatalf("clear dueDate: %v", err)
		}
		if updated.DueDate != nil {
			t.Fatalf("dueDate not cleared: %v", *updated.DueDate)
		}
	})

	t.Run("UpdateMovesOrder", func(t *testing.T) {
		s := open(t)
		a := mustCreate(t, s, "A")
		mustCreate(t, s, "B")
		mustCreate(t, s, "C")

		updated, err := s.UpdateTask(ctx, a.ID, TaskPatch{Order: Some(2)})
		if err != nil {
			t.Fatalf("update order: %v", err)
		}
		if updated.Order != 2 {
			t.Fatalf("order = %d, want 2", updated.Order)
		}

		tasks := mustList(t, s)
		assertDense(t, tasks)
		if got := titles(tasks); !reflect.DeepEqual(got, []string{"B", "C", "A"}) {
			t.Fatalf("titles = %v", got)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := open(t)
		due := "2026-10-01"
		created, err := s.CreateTask(ctx, TaskInput{
			Title:       "round trip",
			Description: "field fidelity",
			Status:      StatusPending,
			DueDate:     &due,
			Tags:        []string{"a", "b"},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID == "" {
			t.Fatal("server must assign an id")
		}

		tasks := mustList(t, s)
		if len(tasks) != 1 {
			t.Fatalf("expected one task, got %d", len(tasks))
		}
		got := tasks[0]
		if got.ID != created.ID || got.Title != created.Title ||
			got.Description != created.Description || got.Status != created.Status {
			t.Fatalf("listed task differs: %+v vs %+v", got, created)
		}
		if got.DueDate == nil || *got.DueDate != due {
			t.Fatalf("dueDate = %v", got.DueDate)
		}
		if !sameTagSet(got.Tags, created.Tags) {
			t.Fatalf("tags = %v", got.Tags)
		}
		if !got.CreatedAt.Equal(created.CreatedAt) {
			t.Fatalf("createdAt = %v, want %v", got.CreatedAt, created.CreatedAt)
		}
	})

	t.Run("TaskNotFound", func(t *testing.T) {
		s := open(t)
		if _, err := s.UpdateTask(ctx, "missing", TaskPatch{Title: Some("x")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("update: expected not found, got %v", err)
		}
		if _, err := s.DeleteTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("delete: expected not found, got %v", err)
		}
	})

	t.Run("CreateValidation", func(t *testing.T) {
		s := open(t)
		if _, err := s.CreateTask(ctx, TaskInput{Title: ""}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("empty title: expected validation error, got %v", err)
		}
		bad := "next tuesday"
		if _, err := s.CreateTask(ctx, TaskInput{Title: "x", DueDate: &bad}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("bad date: expected validation error, got %v", err)
		}
		if _, err := s.CreateTask(ctx, TaskInput{Title: "x", Status: "soon"}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("bad status: expected validation error, got %v", err)
		}
	})

	t.Run("ListTagsCollated", func(t *testing.T) {
		s := open(t)
		for _, name := range []string{"zulu", "Alpha", "beta"} {
			if _, err := s.CreateTag(ctx, name); err != nil {
				t.Fatalf("create %q: %v", name, err)
			}
		}
		tags, err := s.ListTags(ctx)
		if err != nil {
			t.Fatalf("list tags: %v", err)
		}
		if !reflect.DeepEqual(tags, []string{"Alpha", "beta", "zulu"}) {
			t.Fatalf("tags = %v, want locale order [Alpha beta zulu]", tags)
		}
	})
}
