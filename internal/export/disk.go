package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskSink writes snapshots below a local directory. Keys containing "/"
// become subdirectories.
type DiskSink struct {
	dir string
}

// NewDiskSink creates dir if needed.
func NewDiskSink(dir string) (*DiskSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskSink{dir: dir}, nil
}

// Put writes body to a temp file and renames it into place so readers
// never see a partial snapshot.
func (s *DiskSink) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *DiskSink) path(key string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(s.dir, strings.TrimPrefix(clean, string(filepath.Separator)))
}

// Cleanup removes snapshot files older than maxAge.
func (s *DiskSink) Cleanup(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	return filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
		return nil
	})
}
