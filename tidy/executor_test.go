package tidy

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestExecutor(t *testing.T, store *Store, root string, dryRun bool) *Executor {
	t.Helper()
	return NewExecutor(store, filepath.Join(root, "trash"), filepath.Join(root, "archive"), dryRun, log.New())
}

func TestExecuteMove(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	src := writeTempFile(t, root, "invoice.pdf", "x")
	dst := filepath.Join(root, "Finance", "Documents", "invoice.pdf")
	p := &Plan{SourcePath: src, Action: ActionMove, Destination: dst, Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, false)
	msg, err := e.Execute(p)
	require.NoError(t, err)
	require.Contains(t, msg, "moved")

	require.NoFileExists(t, src)
	require.FileExists(t, dst)

	got, err := store.Plan(p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, got.Status)
	require.False(t, got.ExecutedAt.IsZero())
}

func TestExecuteMoveAvoidsCollision(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	src := writeTempFile(t, root, "photo.jpg", "new")
	dstDir := filepath.Join(root, "Personal", "Media")
	require.NoError(t, os.MkdirAll(dstDir, 0o755))
	writeTempFile(t, dstDir, "photo.jpg", "old")

	p := &Plan{SourcePath: src, Action: ActionMove,
		Destination: filepath.Join(dstDir, "photo.jpg"), Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, false)
	_, err := e.Execute(p)
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(dstDir, "photo.jpg"))
	require.FileExists(t, filepath.Join(dstDir, "photo-1.jpg"))
	data, err := os.ReadFile(filepath.Join(dstDir, "photo.jpg"))
	require.NoError(t, err)
	require.Equal(t, "old", string(data))
}

func TestExecuteDeleteGoesToTrash(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	src := writeTempFile(t, root, "setup.dmg", "payload")
	p := &Plan{SourcePath: src, Action: ActionDelete, Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, false)
	msg, err := e.Execute(p)
	require.NoError(t, err)
	require.Contains(t, msg, "trashed")

	require.NoFileExists(t, src)
	require.FileExists(t, filepath.Join(root, "trash", "setup.dmg"))
}

func TestExecuteArchiveDefaultDir(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	src := writeTempFile(t, root, "backup.zip", "z")
	p := &Plan{SourcePath: src, Action: ActionArchive, Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, false)
	_, err := e.Execute(p)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, "archive", "backup.zip"))
}

func TestExecuteRenameStaysInDir(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	src := writeTempFile(t, root, "IMG_2041.heic", "i")
	p := &Plan{SourcePath: src, Action: ActionRename,
		Destination: "2025-08-trip.heic", Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, false)
	_, err := e.Execute(p)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, "2025-08-trip.heic"))
	require.NoFileExists(t, src)
}

func TestExecuteMissingSourceFails(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	p := &Plan{SourcePath: filepath.Join(root, "gone.pdf"), Action: ActionMove,
		Destination: filepath.Join(root, "x", "gone.pdf"), Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, false)
	_, err := e.Execute(p)
	require.Error(t, err)

	got, err := store.Plan(p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Contains(t, got.Error, "no longer exists")
}

func TestExecuteMoveWithoutDestinationFails(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	src := writeTempFile(t, root, "scan0001.pdf", "s")
	p := &Plan{SourcePath: src, Action: ActionMove, Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, false)
	_, err := e.Execute(p)
	require.Error(t, err)
	require.FileExists(t, src)

	got, err := store.Plan(p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
}

func TestExecuteDryRunTouchesNothing(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	src := writeTempFile(t, root, "setup.exe", "payload")
	p := &Plan{SourcePath: src, Action: ActionDelete, Status: StatusApproved}
	require.NoError(t, store.SavePlan(p))

	e := newTestExecutor(t, store, root, true)
	msg, err := e.Execute(p)
	require.NoError(t, err)
	require.Contains(t, msg, "would trash")

	require.FileExists(t, src)
	got, err := store.Plan(p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
}

func TestExecuteApprovedRunsBatch(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t)
	a := writeTempFile(t, root, "a.tmp", "a")
	b := writeTempFile(t, root, "b.tmp", "b")
	require.NoError(t, store.SavePlan(&Plan{SourcePath: a, Action: ActionDelete, Status: StatusApproved}))
	require.NoError(t, store.SavePlan(&Plan{SourcePath: b, Action: ActionDelete, Status: StatusApproved}))
	require.NoError(t, store.SavePlan(&Plan{SourcePath: a, Action: ActionDelete}))

	e := newTestExecutor(t, store, root, false)
	results, err := e.ExecuteApproved()
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	require.NoFileExists(t, a)
	require.NoFileExists(t, b)
}
