package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/jeebs/internal/models"
)

// faultyFiles fails the n-th Write call (1-based) and passes everything else through.
type faultyFiles struct {
	Files
	failOn int
	writes int
}

var errInjected = errors.New("injected write failure")

func (f *faultyFiles) Write(path string, content []byte) ([]string, error) {
	f.writes++
	if f.writes == f.failOn {
		return nil, errInjected
	}
	return f.Files.Write(path, content)
}

// tree maps every file under root to its content.
func tree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if d.IsDir() {
			out[filepath.ToSlash(rel)+"/"] = ""
			return nil
		}
		data, err := os.ReadFile(p)
		out[filepath.ToSlash(rel)] = string(data)
		return err
	})
	require.NoError(t, err)
	return out
}

func seed(t *testing.T, fs *FS, files map[string]string) {
	t.Helper()
	for p, c := range files {
		_, err := fs.Write(p, []byte(c))
		require.NoError(t, err)
	}
}

func TestApplyAtomically_RevertsCreatedFile(t *testing.T) {
	fs := tempWorkspace(t)
	a := NewApplier(fs, DefaultPolicy(), nil)
	before := tree(t, fs.Root())

	changes := []models.FileChange{
		{Path: "evolution/x.md", NewContent: "A"},
		{Path: "evolution/x.md/y.md", NewContent: "B"},
	}
	require.NoError(t, a.Validate(changes))

	_, err := a.ApplyAtomically(changes)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(fs.Root(), "evolution", "x.md"))
	assert.True(t, os.IsNotExist(statErr), "x.md must not exist after revert")
	assert.Equal(t, before, tree(t, fs.Root()))
}

func TestApplyAtomically_FailureAtEveryPosition(t *testing.T) {
	changes := []models.FileChange{
		{Path: "evolution/notes/a.md", NewContent: "new a"},
		{Path: "src/lib.rs", NewContent: "new lib"},
		{Path: "README.md", NewContent: "new readme"},
		{Path: "scripts/run.sh", NewContent: "new script"},
	}

	for n := 1; n <= len(changes); n++ {
		fs := tempWorkspace(t)
		seed(t, fs, map[string]string{
			"src/lib.rs": "old lib",
			"README.md":  "old readme",
		})
		before := tree(t, fs.Root())

		ff := &faultyFiles{Files: fs, failOn: n}
		_, err := NewApplier(ff, DefaultPolicy(), nil).ApplyAtomically(changes)
		require.ErrorIs(t, err, errInjected, "fail on %d", n)
		assert.Equal(t, before, tree(t, fs.Root()), "fail on %d", n)
	}
}

func TestApplyAtomically_Success(t *testing.T) {
	fs := tempWorkspace(t)
	seed(t, fs, map[string]string{"README.md": "old"})
	a := NewApplier(fs, DefaultPolicy(), nil)

	changes := []models.FileChange{
		{Path: "README.md", NewContent: "new"},
		{Path: "evolution/learning/plan.md", NewContent: "plan"},
	}
	dirs, err := a.ApplyAtomically(changes)
	require.NoError(t, err)
	assert.Equal(t, []string{"evolution", "evolution/learning"}, dirs)

	got := tree(t, fs.Root())
	assert.Equal(t, "new", got["README.md"])
	assert.Equal(t, "plan", got["evolution/learning/plan.md"])
}

func TestSnapshotThenRestore_RoundTrip(t *testing.T) {
	fs := tempWorkspace(t)
	seed(t, fs, map[string]string{
		"README.md":       "readme v1",
		"src/keep.rs":     "untouched",
		"src/changed.rs":  "changed v1",
		"evolution/a.md":  "a v1",
	})
	a := NewApplier(fs, DefaultPolicy(), nil)
	changes := []models.FileChange{
		{Path: "README.md", NewContent: "readme v2"},
		{Path: "src/changed.rs", NewContent: "changed v2"},
		{Path: "evolution/new/b.md", NewContent: "b v1"},
	}

	backup, err := a.Snapshot(changes)
	require.NoError(t, err)
	require.Len(t, backup, 3)
	assert.True(t, backup[0].ExistedBefore)
	assert.Equal(t, "readme v1", backup[0].NewContent)
	assert.False(t, backup[2].ExistedBefore)
	assert.Empty(t, backup[2].NewContent)

	before := tree(t, fs.Root())

	dirs, err := a.ApplyAtomically(changes)
	require.NoError(t, err)
	require.NotEqual(t, before, tree(t, fs.Root()))

	require.NoError(t, a.Restore(backup, dirs))
	assert.Equal(t, before, tree(t, fs.Root()))
}

func TestRestore_RemovesCreatedDirectories(t *testing.T) {
	fs := tempWorkspace(t)
	a := NewApplier(fs, DefaultPolicy(), nil)
	before := tree(t, fs.Root())
	changes := []models.FileChange{{Path: "evolution/reflections/x.md", NewContent: "x"}}

	backup, err := a.Snapshot(changes)
	require.NoError(t, err)
	dirs, err := a.ApplyAtomically(changes)
	require.NoError(t, err)

	require.NoError(t, a.Restore(backup, dirs))
	_, statErr := os.Stat(filepath.Join(fs.Root(), "evolution"))
	assert.True(t, os.IsNotExist(statErr), "evolution/ must be gone after restore")
	assert.Equal(t, before, tree(t, fs.Root()))
}

func TestRestore_KeepsDirectoryWithForeignEntries(t *testing.T) {
	fs := tempWorkspace(t)
	a := NewApplier(fs, DefaultPolicy(), nil)
	changes := []models.FileChange{{Path: "evolution/reflections/x.md", NewContent: "x"}}

	backup, err := a.Snapshot(changes)
	require.NoError(t, err)
	dirs, err := a.ApplyAtomically(changes)
	require.NoError(t, err)
	seed(t, fs, map[string]string{"evolution/other.md": "kept"})

	require.NoError(t, a.Restore(backup, dirs))
	got := tree(t, fs.Root())
	assert.Equal(t, "kept", got["evolution/other.md"])
	assert.NotContains(t, got, "evolution/reflections/")
}

func TestSnapshotPerformsNoWrites(t *testing.T) {
	fs := tempWorkspace(t)
	ff := &faultyFiles{Files: fs, failOn: -1}
	_, err := NewApplier(ff, DefaultPolicy(), nil).Snapshot([]models.FileChange{{Path: "evolution/a.md", NewContent: "x"}})
	require.NoError(t, err)
	assert.Zero(t, ff.writes)
}

func TestRestore_ReverseOrderAndJoinedErrors(t *testing.T) {
	rec := &recordingFiles{}
	a := NewApplier(rec, DefaultPolicy(), nil)
	err := a.Restore([]models.FileChange{
		{Path: "evolution/1.md", NewContent: "one", ExistedBefore: true},
		{Path: "evolution/2.md"},
		{Path: "evolution/3.md", NewContent: "three", ExistedBefore: true},
	}, []string{"evolution", "evolution/sub"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"write evolution/3.md", "remove evolution/2.md", "write evolution/1.md",
		"rmdir evolution/sub", "rmdir evolution",
	}, rec.ops)

	rec.fail = true
	err = a.Restore([]models.FileChange{
		{Path: "evolution/1.md", ExistedBefore: true},
		{Path: "evolution/2.md", ExistedBefore: true},
	}, nil)
	require.Error(t, err)
	msgs := []string{}
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		msgs = append(msgs, e.Error())
	}
	sort.Strings(msgs)
	assert.Len(t, msgs, 2)
}

type recordingFiles struct {
	ops  []string
	fail bool
}

func (r *recordingFiles) Read(string) ([]byte, bool, error) { return nil, false, nil }

func (r *recordingFiles) Write(path string, _ []byte) ([]string, error) {
	r.ops = append(r.ops, "write "+path)
	if r.fail {
		return nil, errInjected
	}
	return nil, nil
}

func (r *recordingFiles) Remove(path string) error {
	r.ops = append(r.ops, "remove "+path)
	return nil
}

func (r *recordingFiles) RemoveDir(path string) error {
	r.ops = append(r.ops, "rmdir "+path)
	return nil
}
