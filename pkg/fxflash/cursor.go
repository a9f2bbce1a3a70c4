package fxflash

import (
	"fmt"
)

// Domain selects which blob the cursor reads.
type Domain uint8

const (
	// DomainData reads the data blob through the page cache.
	DomainData Domain = iota

	// DomainSave reads the save mirror.
	DomainSave
)

func (d Domain) String() string {
	if d == DomainSave {
		return "save"
	}

	return "data"
}

// cursor is the engine's single read position.
//
// off is the address of the next byte to be returned. When hasPending is
// set, pending already holds the byte at off.
type cursor struct {
	domain     Domain
	off        uint32
	pending    byte
	hasPending bool

	// Stream window: the page last used for data reads. It is only trusted
	// while the page is still valid and holds the same base.
	win     int
	winBase uint32
	winOK   bool
}

func (c *cursor) reset(d Domain, off uint32) {
	c.domain = d
	c.off = off
	c.hasPending = false
	c.winOK = false
}

// SeekData points the cursor at the local data address addr.
func (e *Engine) SeekData(addr uint32) {
	e.cur.reset(DomainData, absolute(addr, e.programPage))
}

// SeekDataArray points the cursor at element index of an array of
// elementSize-byte elements at addr, plus offset. An elementSize of 0 means
// 256.
func (e *Engine) SeekDataArray(addr uint32, index, offset, elementSize uint8) {
	e.SeekData(arrayAddress(addr, index, offset, elementSize))
}

// SeekSave points the cursor at addr in the save block and loads the save
// mirror if it is not resident yet. Load failures surface as 0xFF bytes.
func (e *Engine) SeekSave(addr uint32) {
	e.cur.reset(DomainSave, addr)

	if e.save != nil {
		if err := e.save.ensureLoaded(); err != nil {
			e.log.Debug("save mirror load failed", "error", err)
		}
	}
}

// ReadPendingUint8 returns the byte at the cursor, advances, and fetches the
// following byte so a closing [Engine.ReadEnd] needs no I/O.
func (e *Engine) ReadPendingUint8() uint8 {
	out := e.takePending()
	e.cur.off++
	e.cur.pending = e.fetch(e.cur.off)
	e.cur.hasPending = true

	return out
}

// ReadEnd returns the byte at the cursor, advances, and ends the pipelined
// read. No further byte is fetched.
func (e *Engine) ReadEnd() uint8 {
	out := e.takePending()
	e.cur.off++
	e.cur.hasPending = false

	return out
}

// ReadPendingLastUint8 is [Engine.ReadEnd].
func (e *Engine) ReadPendingLastUint8() uint8 {
	return e.ReadEnd()
}

// ReadPendingUint16 reads a big-endian uint16, leaving the next byte pending.
func (e *Engine) ReadPendingUint16() uint16 {
	return uint16(e.readPendingBE(2))
}

// ReadPendingLastUint16 reads a big-endian uint16 and ends the read.
func (e *Engine) ReadPendingLastUint16() uint16 {
	return uint16(e.readLastBE(2))
}

// ReadPendingUint24 reads a big-endian 24-bit value, leaving the next byte
// pending.
func (e *Engine) ReadPendingUint24() uint32 {
	return e.readPendingBE(3)
}

// ReadPendingLastUint24 reads a big-endian 24-bit value and ends the read.
func (e *Engine) ReadPendingLastUint24() uint32 {
	return e.readLastBE(3)
}

// ReadPendingUint32 reads a big-endian uint32, leaving the next byte pending.
func (e *Engine) ReadPendingUint32() uint32 {
	return e.readPendingBE(4)
}

// ReadPendingLastUint32 reads a big-endian uint32 and ends the read.
func (e *Engine) ReadPendingLastUint32() uint32 {
	return e.readLastBE(4)
}

func (e *Engine) readPendingBE(n int) uint32 {
	var v uint32
	for range n {
		v = v<<8 | uint32(e.ReadPendingUint8())
	}

	return v
}

func (e *Engine) readLastBE(n int) uint32 {
	var v uint32
	for range n - 1 {
		v = v<<8 | uint32(e.ReadPendingUint8())
	}

	return v<<8 | uint32(e.ReadEnd())
}

// ReadBytes fills buf from the cursor and leaves the following byte
// pending. Unreadable bytes are 0xFF and the returned error wraps
// [ErrShortRead].
func (e *Engine) ReadBytes(buf []byte) error {
	err := e.readBulk(buf)
	e.cur.pending = e.fetch(e.cur.off)
	e.cur.hasPending = true

	return err
}

// ReadBytesEnd fills buf from the cursor and ends the read. Unreadable bytes
// are 0xFF and the returned error wraps [ErrShortRead].
func (e *Engine) ReadBytesEnd(buf []byte) error {
	err := e.readBulk(buf)
	e.cur.hasPending = false

	return err
}

// ReadDataBytes seeks to the data address addr and fills buf.
func (e *Engine) ReadDataBytes(addr uint32, buf []byte) error {
	e.SeekData(addr)

	return e.ReadBytesEnd(buf)
}

// ReadSaveBytes seeks to addr in the save block and fills buf.
func (e *Engine) ReadSaveBytes(addr uint32, buf []byte) error {
	e.SeekSave(addr)

	return e.ReadBytesEnd(buf)
}

// ReadDataArray seeks like [Engine.SeekDataArray] and fills buf.
func (e *Engine) ReadDataArray(addr uint32, index, offset, elementSize uint8, buf []byte) error {
	e.SeekDataArray(addr, index, offset, elementSize)

	return e.ReadBytesEnd(buf)
}

// ReadIndexedUint8 reads element index of a uint8 array at addr.
func (e *Engine) ReadIndexedUint8(addr uint32, index uint8) uint8 {
	e.SeekDataArray(addr, index, 0, 1)

	return e.ReadEnd()
}

// ReadIndexedUint16 reads element index of a big-endian uint16 array at addr.
func (e *Engine) ReadIndexedUint16(addr uint32, index uint8) uint16 {
	e.SeekDataArray(addr, index, 0, 2)

	return e.ReadPendingLastUint16()
}

// ReadIndexedUint24 reads element index of a big-endian 24-bit array at addr.
func (e *Engine) ReadIndexedUint24(addr uint32, index uint8) uint32 {
	e.SeekDataArray(addr, index, 0, 3)

	return e.ReadPendingLastUint24()
}

// ReadIndexedUint32 reads element index of a big-endian uint32 array at addr.
func (e *Engine) ReadIndexedUint32(addr uint32, index uint8) uint32 {
	e.SeekDataArray(addr, index, 0, 4)

	return e.ReadPendingLastUint32()
}

func (e *Engine) takePending() byte {
	if e.cur.hasPending {
		return e.cur.pending
	}

	return e.fetch(e.cur.off)
}

// readBulk copies len(buf) bytes starting at the cursor and advances it.
// A pending byte is used as the first byte so bulk and byte-wise reads of
// the same range agree.
func (e *Engine) readBulk(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	from := e.cur.off
	start := from
	rest := buf

	if e.cur.hasPending {
		buf[0] = e.cur.pending
		rest = buf[1:]
		start++
	}

	var missing int
	if e.cur.domain == DomainSave {
		missing = e.saveCopy(rest, start)
	} else {
		missing = e.dataCopy(rest, start)
	}

	e.cur.off += uint32(len(buf))
	e.cur.hasPending = false

	if missing > 0 {
		return fmt.Errorf("%d of %d bytes unavailable at %s offset %d: %w",
			missing, len(buf), e.cur.domain, from, ErrShortRead)
	}

	return nil
}

// fetch returns the byte at abs in the cursor's domain, 0xFF if unreadable.
func (e *Engine) fetch(abs uint32) byte {
	if e.cur.domain == DomainSave {
		if e.save == nil {
			return erasedByte
		}

		return e.save.byteAt(abs)
	}

	page, rel, ok := e.dataWindow(abs)
	if !ok || rel >= len(page) {
		return erasedByte
	}

	return page[rel]
}

// dataWindow returns the resident bytes of the page containing abs and the
// offset of abs within it. The stream window is reused while it still maps
// the same page.
func (e *Engine) dataWindow(abs uint32) ([]byte, int, bool) {
	c := e.cache
	if c == nil {
		return nil, 0, false
	}

	w := &e.cur
	if w.winOK {
		p := c.pages[w.win]
		if p.valid && p.base == w.winBase && abs >= p.base && abs-p.base < uint32(p.resident) {
			return c.bytes(w.win), int(abs - p.base), true
		}
	}

	idx := c.ensure(abs)
	if idx < 0 {
		w.winOK = false

		return nil, 0, false
	}

	w.win = idx
	w.winBase = c.pages[idx].base
	w.winOK = true

	return c.bytes(idx), int(abs - w.winBase), true
}

// dataCopy fills dst from the data blob at abs, page by page. Regions that
// cannot be loaded, or lie past a page's resident bytes, become 0xFF. It
// returns the number of substituted bytes.
func (e *Engine) dataCopy(dst []byte, abs uint32) int {
	if e.cache == nil {
		fill(dst, erasedByte)

		return len(dst)
	}

	pageSize := uint64(e.cache.pageSize)
	missing := 0

	for len(dst) > 0 {
		pageEnd := uint64(alignDown(abs, e.cache.pageSize)) + pageSize
		span := int(min(uint64(len(dst)), pageEnd-uint64(abs)))

		page, rel, ok := e.dataWindow(abs)

		n := 0
		if ok && rel < len(page) {
			n = copy(dst[:span], page[rel:])
		}

		fill(dst[n:span], erasedByte)
		missing += span - n

		dst = dst[span:]
		abs += uint32(span)
	}

	return missing
}

func (e *Engine) saveCopy(dst []byte, off uint32) int {
	if e.save == nil {
		fill(dst, erasedByte)

		return len(dst)
	}

	return e.save.copyAt(dst, off)
}
