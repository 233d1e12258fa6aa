package prepare

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// StageFiles moves staged uploads from the shared unclaimed area into the
// job's input directory.
//
// Jobs without an upload are a no-op. A non-array job has exactly one staged
// artifact named by the fileID prefix: a zip is extracted into input, any
// other file is moved in as-is. An array job has one zip per task, named
// {fileID}-{index}.zip; each is extracted into input/{index}.
func (p *Preparer) StageFiles(hasFileUpload, arrayJob bool, fileID string, dirs Directories) error {
	if !hasFileUpload {
		return nil
	}

	entries, err := os.ReadDir(dirs.Unclaimed)
	if err != nil {
		return fmt.Errorf("failed to read unclaimed directory: %w", err)
	}

	if arrayJob {
		return p.stageArrayUploads(entries, fileID, dirs)
	}
	return p.stageSingleUpload(entries, fileID, dirs)
}

func (p *Preparer) stageSingleUpload(entries []os.DirEntry, fileID string, dirs Directories) error {
	var name string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), fileID) {
			name = entry.Name()
			break
		}
	}
	if name == "" {
		return fmt.Errorf("no staged upload found for file id %s", fileID)
	}

	src := filepath.Join(dirs.Unclaimed, name)
	if strings.HasSuffix(name, ".zip") {
		if err := extractZip(src, dirs.Input); err != nil {
			return fmt.Errorf("failed to extract upload %s: %w", name, err)
		}
		p.Logger.Info("Extracted uploaded archive", slog.String("file", name))
		return nil
	}

	if err := os.Rename(src, filepath.Join(dirs.Input, name)); err != nil {
		return fmt.Errorf("failed to move upload %s: %w", name, err)
	}
	p.Logger.Info("Moved uploaded file", slog.String("file", name))
	return nil
}

func (p *Preparer) stageArrayUploads(entries []os.DirEntry, fileID string, dirs Directories) error {
	staged := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), fileID) {
			continue
		}

		index := arrayTaskIndex(entry.Name())
		taskDir := filepath.Join(dirs.Input, index)
		if err := os.MkdirAll(taskDir, 0o755); err != nil {
			return fmt.Errorf("failed to create task directory %s: %w", taskDir, err)
		}

		src := filepath.Join(dirs.Unclaimed, entry.Name())
		if err := extractZip(src, taskDir); err != nil {
			return fmt.Errorf("failed to extract upload %s: %w", entry.Name(), err)
		}
		staged++
	}

	p.Logger.Info("Staged array job uploads",
		slog.String("file_id", fileID),
		slog.Int("archives", staged),
	)
	return nil
}

// arrayTaskIndex parses the task index from an uploaded archive name. The
// convention is {fileID}-{index}.{ext}: the segment after the first dash,
// with the extension stripped. Names with no index segment fall back to "0".
// Filenames whose fileID itself contains dashes break this convention; it is
// kept as documented rather than reinterpreted.
func arrayTaskIndex(name string) string {
	_, rest, found := strings.Cut(name, "-")
	if !found {
		return "0"
	}
	index := strings.TrimSuffix(rest, filepath.Ext(rest))
	if index == "" {
		return "0"
	}
	return index
}

// extractZip extracts an archive into dest, refusing entries that would
// escape it.
func extractZip(src, dest string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		target := filepath.Join(dest, file.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %s escapes destination", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", target, err)
		}

		if err := extractZipEntry(file, target); err != nil {
			return err
		}
	}

	return nil
}

func extractZipEntry(file *zip.File, target string) error {
	in, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}
