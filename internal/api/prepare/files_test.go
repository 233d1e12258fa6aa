package prepare

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextslurm/backend/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip creates a zip archive at path containing the given name->content
// entries.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()

	w := zip.NewWriter(out)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func stagingPreparer(t *testing.T) (*Preparer, Directories) {
	t.Helper()

	root := t.TempDir()
	p := NewPreparer(root, "http://portal.example.com", logger.NewDefault().Logger)

	dirs, err := p.Setup("user-1", "job-1")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dirs.Unclaimed, 0o755))

	return p, dirs
}

func TestStageFiles_NoUpload(t *testing.T) {
	p, dirs := stagingPreparer(t)

	err := p.StageFiles(false, false, "", dirs)
	require.NoError(t, err)

	entries, err := os.ReadDir(dirs.Input)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStageFiles_SinglePlainFile(t *testing.T) {
	p, dirs := stagingPreparer(t)

	fileID := "f1a2b3c4"
	staged := filepath.Join(dirs.Unclaimed, fileID+".dat")
	require.NoError(t, os.WriteFile(staged, []byte("payload"), 0o644))

	err := p.StageFiles(true, false, fileID, dirs)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dirs.Input, fileID+".dat"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))

	// the staged artifact is claimed, not copied
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))
}

func TestStageFiles_SingleArchive(t *testing.T) {
	p, dirs := stagingPreparer(t)

	fileID := "f1a2b3c4"
	writeZip(t, filepath.Join(dirs.Unclaimed, fileID+".zip"), map[string]string{
		"file0.csv":       "a,b,c",
		"nested/ref.toml": "x = 1",
	})

	err := p.StageFiles(true, false, fileID, dirs)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dirs.Input, "file0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", string(content))

	content, err = os.ReadFile(filepath.Join(dirs.Input, "nested", "ref.toml"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1", string(content))
}

func TestStageFiles_SingleMissing(t *testing.T) {
	p, dirs := stagingPreparer(t)

	err := p.StageFiles(true, false, "f1a2b3c4", dirs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no staged upload found")
}

func TestStageFiles_ArrayJob(t *testing.T) {
	p, dirs := stagingPreparer(t)

	fileID := "f1a2b3c4"
	writeZip(t, filepath.Join(dirs.Unclaimed, fileID+"-0.zip"), map[string]string{
		"file0.txt": "task zero",
	})
	writeZip(t, filepath.Join(dirs.Unclaimed, fileID+"-1.zip"), map[string]string{
		"file0.txt": "task one",
	})

	err := p.StageFiles(true, true, fileID, dirs)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dirs.Input, "0", "file0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "task zero", string(content))

	content, err = os.ReadFile(filepath.Join(dirs.Input, "1", "file0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "task one", string(content))
}

func TestStageFiles_ArrayIgnoresOtherUploads(t *testing.T) {
	p, dirs := stagingPreparer(t)

	fileID := "f1a2b3c4"
	writeZip(t, filepath.Join(dirs.Unclaimed, fileID+"-0.zip"), map[string]string{
		"file0.txt": "mine",
	})
	writeZip(t, filepath.Join(dirs.Unclaimed, "other-0.zip"), map[string]string{
		"file0.txt": "not mine",
	})

	err := p.StageFiles(true, true, fileID, dirs)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dirs.Input, "0", "file0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(content))
}

func TestArrayTaskIndex(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		expected string
	}{
		{name: "indexed archive", filename: "abc123-0.zip", expected: "0"},
		{name: "double digit index", filename: "abc123-12.zip", expected: "12"},
		{name: "no index segment", filename: "abc123.zip", expected: "0"},
		// documented fragility: a dash inside the id shifts the parsed segment
		{name: "dashed id", filename: "abc-123-4.zip", expected: "123-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, arrayTaskIndex(tt.filename))
		})
	}
}

func TestExtractZip_RejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()

	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{
		"../escape.txt": "nope",
	})

	err := extractZip(archive, filepath.Join(dir, "dest"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}
