package fxflash

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/calvinalkan/fxflash/pkg/fs"
)

// State is the engine lifecycle state.
type State uint8

const (
	// StateClosed means no files are open and no cache is allocated.
	StateClosed State = iota
	// StateOpening is held while [Engine.Begin] runs.
	StateOpening
	// StateReady means reads and saves are served.
	StateReady
	// StateFailed means the last Begin failed. Everything it acquired has
	// already been released.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

const saveDirPerm = 0o755

// signature is the two-byte header "AR" found at the start of packaged data
// blobs.
var signature = [2]byte{0x41, 0x52}

// JedecID identifies a flash chip. A virtual chip reports all zeros.
type JedecID struct {
	Manufacturer uint8
	Device       uint8
	Size         uint8
}

// Engine emulates an FX flash chip over a data blob and a save blob.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	opts  Options
	log   *slog.Logger
	state State

	// Active while Ready; copied from opts on Begin.
	programPage uint16
	savePage    uint16

	data     fs.File
	dataSize int64
	cache    *pageCache
	save     *saveLog
	lock     *fs.Lock

	cur cursor
}

// New validates opts and returns a closed engine. Call [Engine.Begin] to
// open it.
func New(opts Options) (*Engine, error) {
	norm, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	return &Engine{
		opts:  norm,
		log:   norm.Logger,
		state: StateClosed,
	}, nil
}

// Open is [New] followed by [Engine.Begin].
func Open(opts Options) (*Engine, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}

	err = e.Begin()
	if err != nil {
		return nil, err
	}

	return e, nil
}

// Begin opens both blobs and allocates the cache. It is a no-op on a
// ready engine. On failure everything acquired is released, the state is
// [StateFailed] and Begin may be retried.
func (e *Engine) Begin() error {
	if e.state == StateReady {
		return nil
	}

	e.state = StateOpening

	err := e.begin()
	if err != nil {
		_ = e.release()
		e.state = StateFailed
		e.log.Debug("begin failed", "error", err)

		return err
	}

	e.state = StateReady
	e.log.Info("engine ready",
		"data", e.opts.DataPath,
		"save", e.opts.SavePath,
		"data_size", e.dataSize,
		"page_size", e.opts.PageSize,
		"page_count", e.opts.PageCount,
		"program_page", e.programPage,
	)

	return nil
}

// BeginPages sets both page registers and calls [Engine.Begin].
func (e *Engine) BeginPages(programPage, savePage uint16) error {
	e.SetPages(programPage, savePage)

	return e.Begin()
}

func (e *Engine) begin() error {
	opts := e.opts

	err := opts.FS.MkdirAll(filepath.Dir(opts.SavePath), saveDirPerm)
	if err != nil {
		return fmt.Errorf("%w: creating save dir: %w", ErrStorageUnavailable, err)
	}

	if opts.LockSave {
		lk, err := fs.NewLocker(opts.FS).TryLock(opts.SavePath + ".lock")
		if err != nil {
			if errors.Is(err, fs.ErrWouldBlock) {
				return fmt.Errorf("%w: %s", ErrBusy, opts.SavePath)
			}

			return fmt.Errorf("%w: locking save: %w", ErrStorageUnavailable, err)
		}

		e.lock = lk
	}

	data, err := opts.FS.Open(opts.DataPath)
	if err != nil {
		return fmt.Errorf("opening data %s: %w: %w", opts.DataPath, ErrOpenFailed, err)
	}

	e.data = data

	info, err := data.Stat()
	if err == nil {
		e.dataSize = info.Size()
	}

	saveFile, err := openSaveFile(opts.FS, opts.SavePath, e.log)
	if err != nil {
		return err
	}

	e.save = newSaveLog(saveFile, e.log)
	e.cache = newPageCache(data, opts.PageSize, opts.PageCount, e.log)
	e.programPage = opts.ProgramPage
	e.savePage = opts.SavePage
	e.cur = cursor{}

	return nil
}

// End commits a dirty save mirror and releases every file, lock and buffer.
// It is safe to call in any state and more than once. The engine can be
// reopened with [Engine.Begin].
func (e *Engine) End() error {
	if e.state == StateClosed {
		return nil
	}

	var commitErr error

	if e.save != nil && e.save.dirty {
		commitErr = e.save.commit()
		if commitErr != nil {
			e.log.Warn("commit on end failed", "error", commitErr)
			commitErr = fmt.Errorf("committing save: %w", commitErr)
		}
	}

	releaseErr := e.release()
	wasReady := e.state == StateReady
	e.state = StateClosed

	if wasReady {
		e.log.Info("engine closed")
	}

	return errors.Join(commitErr, releaseErr)
}

// Close is [Engine.End]. It lets an Engine be used as an [io.Closer].
func (e *Engine) Close() error {
	return e.End()
}

var _ io.Closer = (*Engine)(nil)

func (e *Engine) release() error {
	var errs []error

	if e.data != nil {
		if err := e.data.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing data: %w", err))
		}

		e.data = nil
	}

	if e.save != nil {
		if err := e.save.close(); err != nil {
			errs = append(errs, err)
		}

		e.save = nil
	}

	if e.lock != nil {
		if err := e.lock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("releasing save lock: %w", err))
		}

		e.lock = nil
	}

	e.cache = nil
	e.dataSize = 0
	e.cur = cursor{}

	return errors.Join(errs...)
}

// SetCacheConfig records a new cache geometry. It is normalized like
// [Options.PageSize] and [Options.PageCount] and takes effect on the next
// [Engine.Begin].
func (e *Engine) SetCacheConfig(pageSize, pageCount int) {
	e.opts.PageSize, e.opts.PageCount = normalizeCacheConfig(pageSize, pageCount)
}

// SetPaths records new blob paths, applied on the next [Engine.Begin].
// Empty arguments keep the current path.
func (e *Engine) SetPaths(dataPath, savePath string) error {
	if err := checkPath("data_path", dataPath); err != nil {
		return err
	}

	if err := checkPath("save_path", savePath); err != nil {
		return err
	}

	if dataPath != "" {
		e.opts.DataPath = dataPath
	}

	if savePath != "" {
		e.opts.SavePath = savePath
	}

	return nil
}

// SetPages records the page registers, applied on the next [Engine.Begin].
func (e *Engine) SetPages(programPage, savePage uint16) {
	e.opts.ProgramPage = programPage
	e.opts.SavePage = savePage
}

// State returns the lifecycle state.
func (e *Engine) State() State { return e.state }

// Domain returns the blob the cursor currently reads.
func (e *Engine) Domain() Domain { return e.cur.domain }

// Offset returns the absolute address of the next byte the cursor returns.
func (e *Engine) Offset() uint32 { return e.cur.off }

// PageSize returns the configured cache page size.
func (e *Engine) PageSize() int { return e.opts.PageSize }

// PageCount returns the configured number of cache pages.
func (e *Engine) PageCount() int { return e.opts.PageCount }

// ProgramPage returns the data page register.
func (e *Engine) ProgramPage() uint16 { return e.opts.ProgramPage }

// SavePage returns the save page register.
func (e *Engine) SavePage() uint16 { return e.opts.SavePage }

// DataPath returns the configured data blob path.
func (e *Engine) DataPath() string { return e.opts.DataPath }

// SavePath returns the configured save blob path.
func (e *Engine) SavePath() string { return e.opts.SavePath }

// DataSize returns the data blob size observed at Begin, or 0 if closed.
func (e *Engine) DataSize() int64 { return e.dataSize }

// JedecID reports the chip identity. Virtual flash has none.
func (e *Engine) JedecID() JedecID { return JedecID{} }

// Detect reports whether the data blob is open and its first byte can be
// read. It does not affect sequential prefetching.
func (e *Engine) Detect() bool {
	if e.state != StateReady || e.cache == nil {
		return false
	}

	return e.cache.peek(0) >= 0
}

// HasSignature reports whether the data blob starts with "AR". The check
// uses absolute offset 0 and leaves the cursor and prefetching alone.
func (e *Engine) HasSignature() bool {
	if e.state != StateReady || e.cache == nil {
		return false
	}

	idx := e.cache.peek(0)
	if idx < 0 {
		return false
	}

	page := e.cache.bytes(idx)

	return len(page) >= len(signature) && [2]byte(page[:2]) == signature
}

// WarmUp loads every page overlapping [addr, addr+length) of the data blob
// ahead of time. addr is a local address like [Engine.SeekData].
func (e *Engine) WarmUp(addr uint32, length int) error {
	if err := e.ready(); err != nil {
		return err
	}

	failed := e.cache.warm(absolute(addr, e.programPage), length)
	if failed > 0 {
		return fmt.Errorf("%d pages could not be loaded: %w", failed, ErrShortRead)
	}

	return nil
}

// CacheStats returns cache counters since Begin or the last reset.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}

	return e.cache.stats
}

// ResetCacheStats zeroes the cache counters.
func (e *Engine) ResetCacheStats() {
	if e.cache != nil {
		e.cache.stats = CacheStats{}
	}
}

// LoadGameState fills buf with the save record whose size is len(buf).
// It returns an error wrapping [ErrRecordSizeMismatch] if there is none.
func (e *Engine) LoadGameState(buf []byte) error {
	if err := e.ready(); err != nil {
		return err
	}

	if len(buf) < 1 || len(buf) > MaxRecordSize {
		return fmt.Errorf("record size %d outside [1, %d]: %w", len(buf), MaxRecordSize, ErrInvalidInput)
	}

	return e.save.load(buf)
}

// SaveGameState stores buf as the record of size len(buf) in the save
// mirror, overwriting an existing record of that size. The block is erased
// first when the record does not fit. Call [Engine.Commit] to persist.
func (e *Engine) SaveGameState(buf []byte) error {
	if err := e.ready(); err != nil {
		return err
	}

	return e.save.save(buf)
}

// EraseSaveBlock resets the save mirror to 0xFF. Call [Engine.Commit] to
// persist.
func (e *Engine) EraseSaveBlock() error {
	if err := e.ready(); err != nil {
		return err
	}

	e.save.erase()

	return nil
}

// Commit writes the save mirror to the save blob if it is dirty.
func (e *Engine) Commit() error {
	if err := e.ready(); err != nil {
		return err
	}

	return e.save.commit()
}

// SaveRecords lists the records a load can reach: at most one, at offset 0.
func (e *Engine) SaveRecords() ([]SaveRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := e.save.ensureLoaded(); err != nil {
		return nil, err
	}

	return e.save.records(), nil
}

// SaveDirty reports whether the save mirror has uncommitted changes.
func (e *Engine) SaveDirty() bool {
	return e.save != nil && e.save.dirty
}

func (e *Engine) ready() error {
	if e.state != StateReady {
		return fmt.Errorf("%w (state %s)", ErrClosed, e.state)
	}

	return nil
}
