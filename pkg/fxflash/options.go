package fxflash

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/calvinalkan/fxflash/pkg/fs"
)

// Cache geometry limits.
//
// Page sizes are multiples of 512 (one flash sector) and fit the 16-bit
// resident length each page records.
const (
	MinPageSize      = 512
	MaxPageSize      = 32 * 1024
	DefaultPageSize  = 4096
	MinPageCount     = 2
	MaxPageCount     = 255
	DefaultPageCount = 10

	// MaxPathLen is the longest accepted blob path in bytes.
	MaxPathLen = 127

	pageSizeAlign = 512
)

// Default blob file names, placed in the per-user application data
// directory by [DefaultDataPath] and [DefaultSavePath].
const (
	DataFileName = "fxdata.bin"
	SaveFileName = "fxsave.bin"
)

// Options configures an [Engine].
//
// The zero value is usable: every field has a documented default.
type Options struct {
	// DataPath is the read-only data blob.
	//
	// Default: [DefaultDataPath]. At most [MaxPathLen] bytes.
	DataPath string

	// SavePath is the 4096-byte save blob. It is created (0xFF-filled) if
	// missing or truncated; its directory is created if needed.
	//
	// Default: [DefaultSavePath]. At most [MaxPathLen] bytes.
	SavePath string

	// ProgramPage is the data page register: every data address is offset
	// by ProgramPage*256 bytes. Default 0.
	ProgramPage uint16

	// SavePage is the save page register. The save blob is a file of its
	// own, so it does not offset save addresses; it is kept so callers
	// that configure both registers round-trip. Default 0.
	SavePage uint16

	// PageSize is the cache page size in bytes.
	//
	// Clamped to [MinPageSize, MaxPageSize] and rounded up to a multiple
	// of 512. Default [DefaultPageSize].
	PageSize int

	// PageCount is the number of cache pages.
	//
	// Clamped to [MinPageCount, MaxPageCount]. Default [DefaultPageCount].
	PageCount int

	// FS is the backing filesystem. Default [fs.NewReal].
	FS fs.FS

	// Logger receives debug/info/warn events. Default discards.
	Logger *slog.Logger

	// LockSave holds an exclusive flock on SavePath+".lock" between
	// [Engine.Begin] and [Engine.End]. Contention returns [ErrBusy].
	LockSave bool
}

// DefaultDataPath returns the default data blob location.
func DefaultDataPath() string {
	return filepath.Join(appDataDir(), DataFileName)
}

// DefaultSavePath returns the default save blob location.
func DefaultSavePath() string {
	return filepath.Join(appDataDir(), SaveFileName)
}

func appDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "."
	}

	return filepath.Join(dir, "fxflash")
}

// normalizeCacheConfig applies the page size/count clamping rules.
func normalizeCacheConfig(pageSize, pageCount int) (int, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	pageSize = max(pageSize, MinPageSize)
	pageSize = (pageSize + pageSizeAlign - 1) / pageSizeAlign * pageSizeAlign
	pageSize = min(pageSize, MaxPageSize)

	if pageCount <= 0 {
		pageCount = DefaultPageCount
	}

	pageCount = min(max(pageCount, MinPageCount), MaxPageCount)

	return pageSize, pageCount
}

// normalize fills defaults and validates paths. It never mutates opts.
func (opts Options) normalize() (Options, error) {
	if opts.DataPath == "" {
		opts.DataPath = DefaultDataPath()
	}

	if opts.SavePath == "" {
		opts.SavePath = DefaultSavePath()
	}

	if err := checkPath("data_path", opts.DataPath); err != nil {
		return Options{}, err
	}

	if err := checkPath("save_path", opts.SavePath); err != nil {
		return Options{}, err
	}

	opts.PageSize, opts.PageCount = normalizeCacheConfig(opts.PageSize, opts.PageCount)

	if opts.FS == nil {
		opts.FS = fs.NewReal()
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return opts, nil
}

func checkPath(name, path string) error {
	if len(path) > MaxPathLen {
		return fmt.Errorf("%s is %d bytes, max %d: %w", name, len(path), MaxPathLen, ErrInvalidInput)
	}

	return nil
}
