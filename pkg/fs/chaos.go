package fs

import (
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Partially initialized configs
// only inject faults for the specified rates.
type ChaosConfig struct {
	// ReadFailRate controls how often File.Read fails entirely,
	// returning zero bytes and EIO.
	ReadFailRate float64

	// PartialReadRate controls how often File.Read returns a short read
	// (n < len(buf), err==nil) by limiting the underlying read size. This is
	// valid io.Reader behavior and tests that callers loop until EOF.
	PartialReadRate float64

	// WriteFailRate controls how often File.Write fails entirely, writing zero
	// bytes and returning EIO, ENOSPC, EDQUOT, or EROFS.
	WriteFailRate float64

	// PartialWriteRate controls how often File.Write writes only a prefix and
	// returns io.ErrShortWrite.
	PartialWriteRate float64

	// SeekFailRate controls how often File.Seek fails, returning position 0
	// and EIO.
	SeekFailRate float64

	// SyncFailRate controls how often File.Sync fails with EIO.
	SyncFailRate float64

	// OpenFailRate controls how often FS.Open, FS.Create, and FS.OpenFile fail.
	OpenFailRate float64

	// StatFailRate controls how often FS.Stat and FS.Exists fail with EACCES or EIO.
	StatFailRate float64
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails     int64
	ReadFails     int64
	WriteFails    int64
	PartialReads  int64
	PartialWrites int64
	SeekFails     int64
	SyncFails     int64
	StatFails     int64
}

// Total returns the sum of all injected faults.
func (s ChaosStats) Total() int64 {
	return s.OpenFails + s.ReadFails + s.WriteFails + s.PartialReads +
		s.PartialWrites + s.SeekFails + s.SyncFails + s.StatFails
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects random failures for testing.
//
// Injected errors are [*fs.PathError] values carrying a real [syscall.Errno],
// marked so [IsChaosErr] can tell them apart from real filesystem errors.
// Chaos never injects ENOENT; missing-path results come from the wrapped FS.
//
// Return shapes follow [os.File]: failed reads return n==0, short reads
// return n>0 with a nil error, failed seeks return position 0.
type Chaos struct {
	fs     FS
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex

	openFails     atomic.Int64
	readFails     atomic.Int64
	writeFails    atomic.Int64
	partialReads  atomic.Int64
	partialWrites atomic.Int64
	seekFails     atomic.Int64
	syncFails     atomic.Int64
	statFails     atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config *ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	c := &Chaos{
		fs:  underlying,
		rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}

	if config != nil {
		c.config = *config
	}

	return c
}

// SetMode switches between [ChaosModeActive] and [ChaosModeNoOp].
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:     c.openFails.Load(),
		ReadFails:     c.readFails.Load(),
		WriteFails:    c.writeFails.Load(),
		PartialReads:  c.partialReads.Load(),
		PartialWrites: c.partialWrites.Load(),
		SeekFails:     c.seekFails.Load(),
		SyncFails:     c.syncFails.Load(),
		StatFails:     c.statFails.Load(),
	}
}

// Open opens a file for reading with fault injection.
func (c *Chaos) Open(path string) (File, error) {
	return c.openWithChaos(path, func() (File, error) {
		return c.fs.Open(path)
	})
}

// Create creates a file for writing with fault injection.
func (c *Chaos) Create(path string) (File, error) {
	return c.openWithChaos(path, func() (File, error) {
		return c.fs.Create(path)
	})
}

// OpenFile opens a file with the specified flags and permissions with fault injection.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return c.openWithChaos(path, func() (File, error) {
		return c.fs.OpenFile(path, flag, perm)
	})
}

// MkdirAll passes through; directory creation is not a fault target.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	return c.fs.MkdirAll(path, perm)
}

// Stat returns file info with fault injection.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if err := c.statChaos(path); err != nil {
		return nil, err
	}

	return c.fs.Stat(path)
}

func (c *Chaos) statChaos(path string) error {
	if !c.should(c.config.StatFailRate) {
		return nil
	}

	c.statFails.Add(1)

	return pathError("stat", path, c.pick(syscall.EACCES, syscall.EIO))
}

func (c *Chaos) openWithChaos(path string, openFn func() (File, error)) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, pathError("open", path, c.pick(syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE))
	}

	file, err := openFn()
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: file, chaos: c, path: path}, nil
}

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(rate float64) bool {
	if ChaosMode(c.mode.Load()) != ChaosModeActive || rate <= 0 {
		return false
	}

	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.Float64() < rate
}

func (c *Chaos) randIntn(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.IntN(n)
}

func (c *Chaos) pick(errnos ...syscall.Errno) syscall.Errno {
	return errnos[c.randIntn(len(errnos))]
}

// pathError creates an injected [*fs.PathError] with the given operation, path, and errno.
func pathError(op, path string, errno syscall.Errno) error {
	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// chaosFile wraps a [File] and injects faults on Read/Write/Seek/Sync.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Read(buf []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.ReadFailRate) {
		cf.chaos.readFails.Add(1)

		return 0, pathError("read", cf.path, syscall.EIO)
	}

	// Limit the underlying read rather than shrinking the count, otherwise
	// the file offset advances past bytes the caller never saw.
	if len(buf) > 1 && cf.chaos.should(cf.chaos.config.PartialReadRate) {
		cf.chaos.partialReads.Add(1)
		cutoff := cf.chaos.randIntn(len(buf)-1) + 1

		return cf.f.Read(buf[:cutoff])
	}

	return cf.f.Read(buf)
}

func (cf *chaosFile) Write(data []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		return 0, pathError("write", cf.path, cf.chaos.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	if len(data) > 1 && cf.chaos.should(cf.chaos.config.PartialWriteRate) {
		cf.chaos.partialWrites.Add(1)
		cutoff := cf.chaos.randIntn(len(data)-1) + 1

		n, err := cf.f.Write(data[:cutoff])
		if err != nil {
			return n, err
		}

		return n, &chaosError{Err: io.ErrShortWrite}
	}

	return cf.f.Write(data)
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	if cf.chaos.should(cf.chaos.config.SeekFailRate) {
		cf.chaos.seekFails.Add(1)

		return 0, pathError("seek", cf.path, syscall.EIO)
	}

	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Sync() error {
	if cf.chaos.should(cf.chaos.config.SyncFailRate) {
		cf.chaos.syncFails.Add(1)

		return pathError("sync", cf.path, syscall.EIO)
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Close() error { return cf.f.Close() }

func (cf *chaosFile) Fd() uintptr { return cf.f.Fd() }

func (cf *chaosFile) Stat() (os.FileInfo, error) { return cf.f.Stat() }

var _ FS = (*Chaos)(nil)
