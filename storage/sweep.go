package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charvault/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sweeper reclaims orphaned archive snapshots: files in the archive
// directory that no character row references anymore. Updates orphan
// the previous snapshot, so orphans accumulate during normal operation.
// Referenced files are never touched; unreferenced files are
// removed only once they are older than minAge, so an in-flight store
// (snapshot written, row not yet inserted) is never swept.
type Sweeper struct {
	db      *gorm.DB
	archive *Archive
	minAge  time.Duration
	logger  *zap.Logger
}

// NewSweeper creates a Sweeper over the given archive directory.
func NewSweeper(db *gorm.DB, archive *Archive, minAge time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{db: db, archive: archive, minAge: minAge, logger: logger}
}

// Sweep removes stale orphan snapshots and returns how many were deleted.
func (sw *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(sw.archive.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("sweep: read archive dir: %w", err)
	}

	var paths []string
	if err := sw.db.Model(&model.Character{}).Pluck("local_file_path", &paths).Error; err != nil {
		return 0, fmt.Errorf("sweep: list referenced paths: %w", err)
	}
	referenced := make(map[string]bool, len(paths))
	for _, p := range paths {
		referenced[filepath.Base(p)] = true
	}

	cutoff := time.Now().Add(-sw.minAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || referenced[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(sw.archive.Dir(), e.Name())
		if err := os.Remove(path); err != nil {
			sw.logger.Warn("sweep: remove failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		sw.logger.Info("archive sweep complete", zap.Int("removed", removed))
	}
	return removed, nil
}
