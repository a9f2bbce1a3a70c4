package fxflash

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/calvinalkan/fxflash/pkg/fs"
)

// seqThreshold is the number of consecutive sequential page transitions
// after which the next page is prefetched.
const seqThreshold = 3

// errEmptyPage is returned when a page load reads zero bytes.
var errEmptyPage = errors.New("zero bytes read")

// CacheStats counts page cache activity since Begin or the last
// [Engine.ResetCacheStats].
type CacheStats struct {
	Hits         uint64 // requests served by a resident page
	Misses       uint64 // requests that needed a load
	Loads        uint64 // successful page loads, prefetches included
	Prefetches   uint64 // successful speculative loads
	Evictions    uint64 // loads that replaced a valid page
	LoadFailures uint64 // loads that failed, prefetches included
}

// cachePage describes one slot of the arena. Its bytes live in
// pageCache.arena at [i*pageSize, (i+1)*pageSize).
type cachePage struct {
	base     uint32
	resident uint16
	valid    bool
	age      uint32
}

// pageCache is a fixed set of fixed-size windows into the data blob.
//
// Pages are addressed by index. The arena is allocated once and never
// resized; a new geometry means a new pageCache.
type pageCache struct {
	file     fs.File
	log      *slog.Logger
	pageSize uint32
	pages    []cachePage
	arena    []byte

	clock    uint32
	lastHit  int
	prevBase uint32
	run      int

	stats CacheStats
}

func newPageCache(file fs.File, pageSize, pageCount int, log *slog.Logger) *pageCache {
	return &pageCache{
		file:     file,
		log:      log,
		pageSize: uint32(pageSize),
		pages:    make([]cachePage, pageCount),
		arena:    make([]byte, pageSize*pageCount),
		clock:    1,
		lastHit:  -1,
	}
}

// bytes returns the resident bytes of page i.
func (c *pageCache) bytes(i int) []byte {
	start := i * int(c.pageSize)

	return c.arena[start : start+int(c.pages[i].resident)]
}

// tick returns the next age value. Before the clock wraps, the ages of
// valid pages are renumbered so their order survives.
func (c *pageCache) tick() uint32 {
	if c.clock == math.MaxUint32 {
		c.renumber()
	}

	age := c.clock
	c.clock++

	return age
}

// renumber rewrites the ages of valid pages to 1..n in their current order
// and restarts the clock after them.
func (c *pageCache) renumber() {
	order := make([]int, 0, len(c.pages))

	for i := range c.pages {
		if c.pages[i].valid {
			order = append(order, i)
		}
	}

	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(c.pages[a].age, c.pages[b].age)
	})

	for rank, i := range order {
		c.pages[i].age = uint32(rank + 1)
	}

	c.clock = uint32(len(order) + 1)

	c.log.Debug("renumbered page ages", "pages", len(order))
}

// lookup returns the index of the valid page holding base, or -1.
// It does not touch ages or stats.
func (c *pageCache) lookup(base uint32) int {
	if c.lastHit >= 0 && c.pages[c.lastHit].valid && c.pages[c.lastHit].base == base {
		return c.lastHit
	}

	for i := range c.pages {
		if c.pages[i].valid && c.pages[i].base == base {
			return i
		}
	}

	return -1
}

// victim picks the slot to reload: the first invalid page, else the oldest.
// Ties go to the lowest index. Page skip is never chosen (pass -1 for none).
func (c *pageCache) victim(skip int) int {
	best := -1

	for i := range c.pages {
		if i == skip {
			continue
		}

		if !c.pages[i].valid {
			return i
		}

		if best < 0 || c.pages[i].age < c.pages[best].age {
			best = i
		}
	}

	return best
}

// ensure returns the index of a valid page containing abs, loading it on a
// miss. It returns -1 if the page could not be loaded.
func (c *pageCache) ensure(abs uint32) int {
	base := alignDown(abs, c.pageSize)

	idx := c.lookup(base)
	if idx >= 0 {
		c.stats.Hits++
		c.pages[idx].age = c.tick()
		c.lastHit = idx
	} else {
		c.stats.Misses++

		idx = c.victim(-1)

		err := c.load(idx, base)
		if err != nil {
			c.log.Debug("page load failed", "base", base, "page", idx, "error", err)

			return -1
		}

		c.lastHit = idx
	}

	if base == c.prevBase+c.pageSize {
		c.run++
	} else {
		c.run = 0
	}

	c.prevBase = base

	c.maybePrefetch(base, idx)

	return idx
}

// peek returns the index of a valid page containing abs, loading it on a
// miss like ensure. Hit and miss counters and the sequential run are left
// alone, so out-of-band checks do not disturb prefetching.
func (c *pageCache) peek(abs uint32) int {
	base := alignDown(abs, c.pageSize)

	if idx := c.lookup(base); idx >= 0 {
		return idx
	}

	idx := c.victim(-1)

	if err := c.load(idx, base); err != nil {
		c.log.Debug("page load failed", "base", base, "page", idx, "error", err)

		return -1
	}

	return idx
}

// maybePrefetch loads the page after base once the access pattern is
// sequential. The caller's page and lastHit are left alone.
func (c *pageCache) maybePrefetch(base uint32, inUse int) {
	if c.run < seqThreshold || len(c.pages) < 2 {
		return
	}

	next := base + c.pageSize
	if next < base || c.lookup(next) >= 0 {
		return
	}

	v := c.victim(inUse)
	if v < 0 {
		return
	}

	if err := c.load(v, next); err != nil {
		c.log.Debug("prefetch failed", "base", next, "page", v, "error", err)

		return
	}

	c.stats.Prefetches++
	c.log.Debug("prefetched page", "base", next, "page", v)
}

// load reads the page at base into slot i. A read that writes nothing
// into the slot leaves it as it was; one that fails after writing leaves
// it invalid.
func (c *pageCache) load(i int, base uint32) error {
	p := &c.pages[i]

	n, err := c.readAt(i, base)
	if err != nil {
		c.stats.LoadFailures++

		if n > 0 {
			c.evict(i)
		}

		return err
	}

	c.evict(i)

	p.base = base
	p.resident = uint16(n)
	p.valid = true
	p.age = c.tick()
	c.stats.Loads++

	c.log.Debug("loaded page", "base", base, "page", i, "bytes", n)

	return nil
}

// evict invalidates slot i, counting it if it held a page.
func (c *pageCache) evict(i int) {
	p := &c.pages[i]
	if !p.valid {
		return
	}

	c.stats.Evictions++
	c.log.Debug("evicting page", "base", p.base, "page", i, "age", p.age)

	p.valid = false
}

// readAt fills slot i from base. It returns the number of bytes written
// into the slot, also on error.
func (c *pageCache) readAt(i int, base uint32) (int, error) {
	if c.file == nil {
		return 0, ErrClosed
	}

	_, err := c.file.Seek(int64(base), io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("seeking to %d: %w", base, err)
	}

	start := i * int(c.pageSize)
	dst := c.arena[start : start+int(c.pageSize)]

	n, err := io.ReadFull(c.file, dst)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("reading page at %d: %w", base, err)
	}

	if n == 0 {
		return 0, errEmptyPage
	}

	return n, nil
}

// warm ensures every page overlapping [abs, abs+length). It reports the
// number of pages that could not be loaded.
func (c *pageCache) warm(abs uint32, length int) int {
	if length <= 0 {
		return 0
	}

	end := uint64(abs) + uint64(length)
	failed := 0

	for p := uint64(alignDown(abs, c.pageSize)); p < end && p <= uint64(^uint32(0)); p += uint64(c.pageSize) {
		if c.ensure(uint32(p)) < 0 {
			failed++
		}
	}

	return failed
}
