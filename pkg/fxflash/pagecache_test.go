package fxflash_test

import (
	"math"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

type readOp struct {
	Addr uint32
	Len  uint16
	Mode uint8
}

// Cache transparency: whatever the access history, bytes read through the
// engine equal a direct read of the file.
func Test_Engine_Reads_Match_Direct_File_Reads_When_Access_Pattern_Is_Random(t *testing.T) {
	t.Parallel()

	geometries := []struct {
		name      string
		pageSize  int
		pageCount int
		blobSize  int
	}{
		{name: "TwoSmallPages", pageSize: 512, pageCount: 2, blobSize: 9000},
		{name: "NonPowerOfTwoPages", pageSize: 1536, pageCount: 3, blobSize: 20000},
		{name: "DefaultGeometry", pageSize: 0, pageCount: 0, blobSize: 70001},
	}

	for _, g := range geometries {
		t.Run(g.name, func(t *testing.T) {
			t.Parallel()

			opts := testOptions(t, patternBlob(g.blobSize), g.pageSize, g.pageCount)

			// Scramble the pattern so page-aligned copies from the wrong page
			// would not accidentally match.
			f := fuzz.NewWithSeed(int64(g.blobSize)).NilChance(0)

			blob := make([]byte, g.blobSize)
			for i := range blob {
				f.Fuzz(&blob[i])
			}

			writeFile(t, opts.DataPath, blob)

			eng := openEngine(t, opts)

			want, err := os.ReadFile(opts.DataPath)
			require.NoError(t, err)

			for i := range 500 {
				var op readOp
				f.Fuzz(&op)

				addr := op.Addr % uint32(len(want))
				n := int(op.Len)%2048 + 1
				n = min(n, len(want)-int(addr))

				got := make([]byte, n)

				switch op.Mode % 3 {
				case 0:
					eng.SeekData(addr)
					require.NoError(t, eng.ReadBytes(got), "op %d", i)
				case 1:
					require.NoError(t, eng.ReadDataBytes(addr, got), "op %d", i)
				default:
					eng.SeekData(addr)
					for j := range got {
						got[j] = eng.ReadPendingUint8()
					}
				}

				if diff := cmp.Diff(want[addr:int(addr)+n], got); diff != "" {
					t.Fatalf("op %d addr=%d n=%d mode=%d (-want +got):\n%s", i, addr, n, op.Mode%3, diff)
				}
			}

			require.Positive(t, eng.CacheStats().Evictions)
		})
	}
}

func Test_Cache_Never_Holds_Duplicate_Pages_When_Filled_Beyond_Capacity(t *testing.T) {
	t.Parallel()

	data := patternBlob(512 * 12)
	eng := openEngine(t, testOptions(t, data, 512, 3))

	order := []int{0, 5, 1, 5, 9, 2, 0, 11, 3, 3, 7, 0, 10, 4, 8, 6}

	for _, page := range order {
		addr := uint32(page*512 + page)

		eng.SeekData(addr)
		require.Equal(t, data[addr], eng.ReadEnd(), "page %d", page)

		bases := fxflash.ValidPagesForTesting(eng)
		require.LessOrEqual(t, len(bases), 3)

		seen := map[uint32]bool{}
		for _, b := range bases {
			require.False(t, seen[b], "duplicate page base %d", b)
			seen[b] = true
		}
	}

	stats := eng.CacheStats()
	require.Positive(t, stats.Evictions)
	require.Equal(t, stats.Loads, stats.Misses)
}

func Test_Cache_Evicts_Oldest_Page_When_Full(t *testing.T) {
	t.Parallel()

	data := patternBlob(512 * 8)
	eng := openEngine(t, testOptions(t, data, 512, 2))

	touch := func(page int) {
		eng.SeekData(uint32(page * 512))
		_ = eng.ReadEnd()
	}

	touch(0)
	touch(4)
	touch(0) // page 4 is now the oldest
	touch(6)

	require.True(t, fxflash.PageResidentForTesting(eng, 0))
	require.False(t, fxflash.PageResidentForTesting(eng, 4*512))
	require.True(t, fxflash.PageResidentForTesting(eng, 6*512))
}

func Test_Cache_Prefetches_Next_Page_When_Access_Is_Sequential(t *testing.T) {
	t.Parallel()

	data := patternBlob(512 * 10)
	eng := openEngine(t, testOptions(t, data, 512, 4))

	// Four sequential pages: three transitions reach the threshold.
	buf := make([]byte, 4*512)
	require.NoError(t, eng.ReadDataBytes(0, buf))

	require.True(t, fxflash.PageResidentForTesting(eng, 4*512), "next page should be prefetched")

	before := eng.CacheStats()
	require.Equal(t, uint64(1), before.Prefetches)
	require.Equal(t, uint64(4), before.Misses)

	eng.SeekData(4 * 512)
	require.Equal(t, data[4*512], eng.ReadEnd())

	after := eng.CacheStats()
	require.Equal(t, before.Misses, after.Misses, "prefetched page must not miss")
	require.Equal(t, before.Hits+1, after.Hits)

	// The hit extends the run, so page 5 follows.
	require.True(t, fxflash.PageResidentForTesting(eng, 5*512))
	require.True(t, fxflash.PageResidentForTesting(eng, 4*512))
}

func Test_Cache_Does_Not_Prefetch_When_Access_Is_Random(t *testing.T) {
	t.Parallel()

	data := patternBlob(512 * 16)
	eng := openEngine(t, testOptions(t, data, 512, 4))

	for _, page := range []int{3, 9, 1, 12, 5, 0, 14} {
		eng.SeekData(uint32(page * 512))
		require.Equal(t, data[page*512], eng.ReadEnd())
	}

	require.Zero(t, eng.CacheStats().Prefetches)
}

func Test_Cache_Skips_Prefetch_When_Next_Page_Is_Past_End_Of_Data(t *testing.T) {
	t.Parallel()

	data := patternBlob(512*4 - 100)
	eng := openEngine(t, testOptions(t, data, 512, 4))

	buf := make([]byte, len(data))
	require.NoError(t, eng.ReadDataBytes(0, buf))

	if diff := cmp.Diff(data, buf); diff != "" {
		t.Fatalf("bytes mismatch (-want +got):\n%s", diff)
	}

	stats := eng.CacheStats()
	require.Zero(t, stats.Prefetches)
	require.Equal(t, uint64(1), stats.LoadFailures)
	require.False(t, fxflash.PageResidentForTesting(eng, 4*512))
}

func Test_Cache_Keeps_Valid_Pages_When_Reads_Go_Past_End_Of_Data(t *testing.T) {
	t.Parallel()

	data := patternBlob(1024)
	eng := openEngine(t, testOptions(t, data, 512, 2))

	eng.SeekData(0)
	require.Equal(t, data[0], eng.ReadEnd())
	eng.SeekData(512)
	require.Equal(t, data[512], eng.ReadEnd())

	require.ElementsMatch(t, []uint32{0, 512}, fxflash.ValidPagesForTesting(eng))

	before := eng.CacheStats()

	// The pending fetch after the last byte reaches offset 1024.
	eng.SeekData(1023)
	require.Equal(t, data[1023], eng.ReadPendingUint8())
	require.Equal(t, uint8(0xFF), eng.ReadEnd())

	for range 3 {
		eng.SeekData(2000)
		require.Equal(t, uint8(0xFF), eng.ReadEnd())
	}

	after := eng.CacheStats()
	require.ElementsMatch(t, []uint32{0, 512}, fxflash.ValidPagesForTesting(eng))
	require.Equal(t, before.Evictions, after.Evictions)
	require.Equal(t, before.Loads, after.Loads)
	require.Equal(t, before.Misses+4, after.Misses)
	require.Equal(t, before.LoadFailures+4, after.LoadFailures)

	eng.SeekData(0)
	require.Equal(t, data[0], eng.ReadEnd())
	require.Equal(t, after.Misses, eng.CacheStats().Misses, "page 0 must still be resident")
}

func Test_Cache_Evicts_Least_Recently_Used_When_Age_Clock_Wraps(t *testing.T) {
	t.Parallel()

	data := patternBlob(512 * 4)
	eng := openEngine(t, testOptions(t, data, 512, 2))

	fxflash.SetCacheClockForTesting(eng, math.MaxUint32-1)

	for _, page := range []int{0, 1, 0, 2} {
		eng.SeekData(uint32(page * 512))
		require.Equal(t, data[page*512], eng.ReadEnd())
	}

	// Page 0 was used after page 1, so page 1 made room for page 2.
	require.True(t, fxflash.PageResidentForTesting(eng, 0))
	require.True(t, fxflash.PageResidentForTesting(eng, 2*512))
	require.False(t, fxflash.PageResidentForTesting(eng, 512))
}

func Test_WarmUp_Loads_Range_When_Called_Before_Reads(t *testing.T) {
	t.Parallel()

	data := patternBlob(512 * 8)
	opts := testOptions(t, data, 512, 4)
	opts.ProgramPage = 2 // 512 bytes
	eng := openEngine(t, opts)

	require.NoError(t, eng.WarmUp(100, 700))

	require.True(t, fxflash.PageResidentForTesting(eng, 512))
	require.True(t, fxflash.PageResidentForTesting(eng, 1024))

	eng.ResetCacheStats()

	got := make([]byte, 700)
	require.NoError(t, eng.ReadDataBytes(100, got))
	require.Equal(t, data[612:1312], got)
	require.Zero(t, eng.CacheStats().Misses)

	require.NoError(t, eng.WarmUp(0, 0))
}

func Test_WarmUp_Reports_ShortRead_When_Range_Extends_Past_Data(t *testing.T) {
	t.Parallel()

	eng := openEngine(t, testOptions(t, patternBlob(1000), 512, 4))

	require.ErrorIs(t, eng.WarmUp(0, 4096), fxflash.ErrShortRead)
	require.True(t, fxflash.PageResidentForTesting(eng, 0))
	require.True(t, fxflash.PageResidentForTesting(eng, 512))
}
