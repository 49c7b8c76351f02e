package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeName lowercases a character name and collapses every run of
// non-alphanumeric characters to a single underscore.
func sanitizeName(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "_")
}

// archiveTimestamp renders the current UTC time as an ISO-like string
// with ':' and '.' replaced, so it is safe in filenames.
func archiveTimestamp(t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(iso)
}

// Snapshot describes one written archive file.
type Snapshot struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// Archive writes and reads per-character JSON snapshots under a local
// directory. Each write produces a fresh timestamped file; old files are
// orphaned, never overwritten.
type Archive struct {
	dir string
}

// NewArchive creates an Archive rooted at dir. The directory is created
// lazily on the first write.
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// Dir returns the archive root directory.
func (a *Archive) Dir() string { return a.dir }

// Write stores payload as pretty-printed JSON under a sanitized,
// timestamped filename and returns the snapshot's absolute path. Files
// are created exclusively: two writes landing in the same millisecond
// get distinct suffixed names, never an overwrite.
func (a *Archive) Write(name string, payload map[string]interface{}) (Snapshot, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("archive: create dir: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("archive: encode payload: %w", err)
	}

	base := fmt.Sprintf("%s_%s", sanitizeName(name), archiveTimestamp(time.Now()))
	for attempt := 0; ; attempt++ {
		filename := base + ".json"
		if attempt > 0 {
			filename = fmt.Sprintf("%s_%d.json", base, attempt)
		}
		path, err := filepath.Abs(filepath.Join(a.dir, filename))
		if err != nil {
			return Snapshot{}, fmt.Errorf("archive: resolve path: %w", err)
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("archive: write file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return Snapshot{}, fmt.Errorf("archive: write file: %w", err)
		}
		if err := f.Close(); err != nil {
			return Snapshot{}, fmt.Errorf("archive: write file: %w", err)
		}
		return Snapshot{Filename: filename, Path: path}, nil
	}
}

// Read loads a snapshot file back into a payload map. A missing or
// unparsable file is an error; callers decide whether that is fatal.
func (a *Archive) Read(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: read file: %w", err)
	}
	payload := make(map[string]interface{})
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("archive: parse file: %w", err)
	}
	return payload, nil
}
