// Package fxflash emulates an external FX flash chip on top of two host files.
//
// The data blob is a large read-only file read through a fixed-size page
// cache with recency eviction and a sequential prefetcher. The save blob is a
// single 4096-byte block mirrored in RAM that holds a log of length-prefixed
// records, written back to disk on [Engine.Commit].
//
// # Basic Usage
//
//	eng, err := fxflash.Open(fxflash.Options{
//	    DataPath:  "/var/lib/game/fxdata.bin",
//	    SavePath:  "/var/lib/game/fxsave.bin",
//	    PageSize:  2048,
//	    PageCount: 4,
//	})
//	if err != nil {
//	    return err
//	}
//	defer eng.End()
//
//	eng.SeekData(0x1000)
//	width := eng.ReadPendingUint16()
//	height := eng.ReadPendingLastUint16()
//
//	_ = eng.SaveGameState(state)
//	_ = eng.Commit()
//
// # Sentinel bytes
//
// Cursor reads never fail. Bytes that cannot be read (past the end of the
// data blob, I/O errors, a closed engine) read as 0xFF, the value of erased
// flash. Bulk reads additionally return an error wrapping [ErrShortRead] so
// callers can tell substituted bytes from stored 0xFF.
//
// # Concurrency
//
// An [Engine] is not safe for concurrent use. All calls must come from one
// goroutine (typically the frame update loop). Separate engines are
// independent and may be used from different goroutines.
package fxflash
