package fxflash

// Export internals for testing.
// This file is only compiled during tests.

// PageResidentForTesting reports whether a valid cache page holds the
// absolute data offset abs. It does not touch ages or stats.
func PageResidentForTesting(e *Engine, abs uint32) bool {
	if e.cache == nil {
		return false
	}

	return e.cache.lookup(alignDown(abs, e.cache.pageSize)) >= 0
}

// ValidPagesForTesting returns the bases of all valid pages, with duplicates
// if the cache ever holds two pages for one base.
func ValidPagesForTesting(e *Engine) []uint32 {
	if e.cache == nil {
		return nil
	}

	var bases []uint32

	for _, p := range e.cache.pages {
		if p.valid {
			bases = append(bases, p.base)
		}
	}

	return bases
}

// SetCacheClockForTesting sets the page cache age clock.
func SetCacheClockForTesting(e *Engine, clock uint32) {
	e.cache.clock = clock
}

// HasPendingForTesting reports whether the cursor holds a pending byte.
func HasPendingForTesting(e *Engine) bool {
	return e.cur.hasPending
}

// AlignDownForTesting exposes alignDown.
func AlignDownForTesting(v, size uint32) uint32 {
	return alignDown(v, size)
}

// ArrayAddressForTesting exposes arrayAddress.
func ArrayAddressForTesting(base uint32, index, offset, elementSize uint8) uint32 {
	return arrayAddress(base, index, offset, elementSize)
}

// NormalizeCacheConfigForTesting exposes normalizeCacheConfig.
func NormalizeCacheConfigForTesting(pageSize, pageCount int) (int, int) {
	return normalizeCacheConfig(pageSize, pageCount)
}
