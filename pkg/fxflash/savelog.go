package fxflash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/calvinalkan/fxflash/pkg/fs"
)

// Save block layout.
const (
	// SaveBlockSize is the exact size of the save blob in bytes.
	SaveBlockSize = 4096

	// SaveCapacity is the usable part of the block. The last two bytes are
	// a guard so a scan can always read a length prefix.
	SaveCapacity = SaveBlockSize - 2

	// MaxRecordSize is the largest payload a single record can hold.
	MaxRecordSize = SaveCapacity - recordHeaderSize

	recordHeaderSize = 2
	erasedByte       = 0xFF
	erasedLen        = 0xFFFF
)

const saveFilePerm = 0o644

// SaveRecord describes one record in the save block.
type SaveRecord struct {
	Offset int // offset of the length prefix
	Size   int // payload length
}

// saveLog is the RAM mirror of the save blob and its record log.
//
// Records are {u16 BE length}{payload} starting at offset 0. A scan ends at
// the first length prefix that differs from the requested size, so only
// the record at offset 0 is ever reachable: saving the same size overwrites
// it in place and saving another size replaces it.
type saveLog struct {
	file   fs.File
	log    *slog.Logger
	mirror [SaveBlockSize]byte
	loaded bool
	dirty  bool
}

// openSaveFile opens path read-write, creating the parent directory and the
// file as needed. A file whose last byte cannot be read is recreated as an
// erased block.
func openSaveFile(fsys fs.FS, path string, log *slog.Logger) (fs.File, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, saveFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening save %s: %w: %w", path, ErrOpenFailed, err)
	}

	if tailReadable(f) {
		return f, nil
	}

	_ = f.Close()

	log.Warn("save block missing or truncated, recreating", "path", path)

	err = writeErasedBlock(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("recreating save %s: %w", path, err)
	}

	f, err = fsys.OpenFile(path, os.O_RDWR, saveFilePerm)
	if err != nil {
		return nil, fmt.Errorf("reopening save %s: %w: %w", path, ErrOpenFailed, err)
	}

	return f, nil
}

func tailReadable(f fs.File) bool {
	_, err := f.Seek(SaveBlockSize-1, io.SeekStart)
	if err != nil {
		return false
	}

	var b [1]byte

	n, _ := f.Read(b[:])

	return n == 1
}

func writeErasedBlock(fsys fs.FS, path string) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	var block [SaveBlockSize]byte
	fill(block[:], erasedByte)

	err = writeFullAndSync(f, block[:])
	closeErr := f.Close()

	if err != nil {
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("%w: closing: %w", ErrShortWrite, closeErr)
	}

	return nil
}

func writeFullAndSync(f fs.File, data []byte) error {
	n, err := f.Write(data)
	if err != nil {
		return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrShortWrite, n, len(data), err)
	}

	if n != len(data) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(data))
	}

	err = f.Sync()
	if err != nil {
		return fmt.Errorf("%w: sync: %w", ErrShortWrite, err)
	}

	return nil
}

func newSaveLog(file fs.File, log *slog.Logger) *saveLog {
	return &saveLog{file: file, log: log}
}

// ensureLoaded reads the block into the mirror on first use.
func (s *saveLog) ensureLoaded() error {
	if s.loaded {
		return nil
	}

	if s.file == nil {
		return ErrClosed
	}

	_, err := s.file.Seek(0, io.SeekStart)
	if err != nil {
		return fmt.Errorf("%w: seek: %w", ErrShortRead, err)
	}

	n, err := io.ReadFull(s.file, s.mirror[:])
	if err != nil {
		return fmt.Errorf("%w: read %d of %d bytes: %w", ErrShortRead, n, SaveBlockSize, err)
	}

	s.loaded = true
	s.dirty = false

	return nil
}

// byteAt returns the mirror byte at off, or 0xFF if the mirror is not
// loaded or off is outside the block.
func (s *saveLog) byteAt(off uint32) byte {
	if !s.loaded || off >= SaveBlockSize {
		return erasedByte
	}

	return s.mirror[off]
}

// copyAt fills dst from the mirror starting at off. Bytes outside the block
// are 0xFF; the count of those bytes is returned.
func (s *saveLog) copyAt(dst []byte, off uint32) int {
	if !s.loaded {
		fill(dst, erasedByte)

		return len(dst)
	}

	n := 0
	if off < SaveBlockSize {
		n = copy(dst, s.mirror[off:])
	}

	fill(dst[n:], erasedByte)

	return len(dst) - n
}

func (s *saveLog) lenAt(off int) int {
	return int(binary.BigEndian.Uint16(s.mirror[off:]))
}

// scan looks for the record of the given payload size. It returns the
// record offset (or -1) and the offset a new record goes to. The first
// prefix that is not size ends the scan.
func (s *saveLog) scan(size int) (int, int) {
	if l := s.lenAt(0); l == size && recordHeaderSize+l <= SaveCapacity {
		return 0, 0
	}

	return -1, 0
}

// records lists the records a scan can reach: the well-formed record at
// offset 0, if any.
func (s *saveLog) records() []SaveRecord {
	l := s.lenAt(0)
	if l == erasedLen || l == 0 || recordHeaderSize+l > SaveCapacity {
		return nil
	}

	return []SaveRecord{{Offset: 0, Size: l}}
}

// findOrAppend returns the payload offset for a record of size, writing a
// new length prefix when none exists. When the record does not fit the
// block is erased and the log restarts at 0.
func (s *saveLog) findOrAppend(size int) int {
	rec, free := s.scan(size)
	if rec >= 0 {
		return rec + recordHeaderSize
	}

	if free+recordHeaderSize+size > SaveCapacity {
		s.log.Warn("save block full, erasing", "free", free, "size", size)
		s.erase()

		free = 0
	}

	binary.BigEndian.PutUint16(s.mirror[free:], uint16(size))
	s.dirty = true

	return free + recordHeaderSize
}

func (s *saveLog) load(buf []byte) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	rec, _ := s.scan(len(buf))
	if rec < 0 {
		return fmt.Errorf("size %d: %w", len(buf), ErrRecordSizeMismatch)
	}

	copy(buf, s.mirror[rec+recordHeaderSize:])

	return nil
}

func (s *saveLog) save(buf []byte) error {
	if len(buf) < 1 || len(buf) > MaxRecordSize {
		return fmt.Errorf("record size %d outside [1, %d]: %w", len(buf), MaxRecordSize, ErrInvalidInput)
	}

	if err := s.ensureLoaded(); err != nil {
		return err
	}

	off := s.findOrAppend(len(buf))
	copy(s.mirror[off:], buf)
	s.dirty = true

	return nil
}

// erase resets the mirror to 0xFF and marks it dirty. The mirror counts as
// loaded afterwards: the block contents are fully known.
func (s *saveLog) erase() {
	fill(s.mirror[:], erasedByte)
	s.loaded = true
	s.dirty = true
}

// commit writes the mirror back when dirty. dirty is cleared only once the
// whole block has been written and synced.
func (s *saveLog) commit() error {
	if !s.dirty {
		return nil
	}

	if s.file == nil {
		return ErrClosed
	}

	_, err := s.file.Seek(0, io.SeekStart)
	if err != nil {
		return fmt.Errorf("%w: seek: %w", ErrShortWrite, err)
	}

	err = writeFullAndSync(s.file, s.mirror[:])
	if err != nil {
		return err
	}

	s.dirty = false

	return nil
}

func (s *saveLog) close() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	s.loaded = false
	s.dirty = false

	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("closing save: %w", err)
	}

	return nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
