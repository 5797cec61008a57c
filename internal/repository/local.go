package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lucasew/dircap/internal/errutil"
	"github.com/lucasew/dircap/internal/eviction"
	"github.com/spf13/afero"
)

// WatchedDirName is the directory, relative to the home directory, that gets watched.
const WatchedDirName = "test"

// ErrEnsure is returned when the watched directory cannot be confirmed to exist.
var ErrEnsure = errors.New("failed to ensure watched directory")

// WatchedPath resolves the watched directory for a home directory.
func WatchedPath(home string) string {
	return filepath.Join(home, WatchedDirName)
}

// LocalDirectory implements eviction.Store on top of a single flat directory.
//
// Only regular files directly inside the directory are considered. Entries whose
// metadata cannot be read are left out without an error, so a file disappearing
// halfway through a scan never fails the scan.
type LocalDirectory struct {
	Dir string
	fs  afero.Fs
	now func() time.Time
}

// NewLocalDirectory returns a LocalDirectory for dir. A nil fs means the OS filesystem.
func NewLocalDirectory(dir string, fsys afero.Fs) *LocalDirectory {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &LocalDirectory{
		Dir: dir,
		fs:  fsys,
		now: time.Now,
	}
}

func (d *LocalDirectory) Path() string {
	return d.Dir
}

// Ensure creates the directory if it does not exist yet.
// Parents are not created: a missing parent is an error.
func (d *LocalDirectory) Ensure(ctx context.Context) error {
	info, err := d.fs.Stat(d.Dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrEnsure, d.Dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrEnsure, err)
	}

	if err := d.fs.Mkdir(d.Dir, 0o755); err != nil {
		// Someone else created it between Stat and Mkdir.
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrEnsure, err)
	}
	slog.Info("Created directory", "path", d.Dir)
	return nil
}

func (d *LocalDirectory) Writable(ctx context.Context) (bool, error) {
	info, err := d.fs.Stat(d.Dir)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", d.Dir, err)
	}
	return !readOnly(info.Mode()), nil
}

// Scan lists the directory and returns every regular, writable file in it.
func (d *LocalDirectory) Scan(ctx context.Context) ([]eviction.Candidate, eviction.ScanStats, error) {
	var stats eviction.ScanStats

	names, err := d.readNames()
	if err != nil {
		return nil, stats, err
	}
	stats.Entries = len(names)

	candidates := make([]eviction.Candidate, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		path := filepath.Join(d.Dir, name)
		info, err := d.lstat(path)
		if err != nil {
			stats.MetadataFailures++
			continue
		}
		if !info.Mode().IsRegular() {
			stats.NonRegular++
			continue
		}
		if readOnly(info.Mode()) {
			slog.Info("Skipping read-only file", "path", path)
			stats.ReadOnly++
			continue
		}

		modTime := info.ModTime()
		if modTime.IsZero() {
			modTime = d.now()
			stats.ModTimeFallbacks++
		}
		candidates = append(candidates, eviction.Candidate{Path: path, ModTime: modTime})
	}

	return candidates, stats, nil
}

func (d *LocalDirectory) Delete(ctx context.Context, path string) error {
	if err := d.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (d *LocalDirectory) readNames() ([]string, error) {
	f, err := d.fs.Open(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.Dir, err)
	}
	defer errutil.Close(f, "Failed to close directory", "path", d.Dir)

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.Dir, err)
	}
	return names, nil
}

// lstat does not follow symlinks when the filesystem supports it, so a link
// to a regular file is not mistaken for one.
func (d *LocalDirectory) lstat(path string) (os.FileInfo, error) {
	if l, ok := d.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return d.fs.Stat(path)
}

func readOnly(mode fs.FileMode) bool {
	return mode.Perm()&0o222 == 0
}
