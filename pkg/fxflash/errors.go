package fxflash

import "errors"

// Sentinel errors returned by fxflash operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, fxflash.ErrRecordSizeMismatch) {
//	    // no save of this size yet, start a new game
//	}
var (
	// ErrStorageUnavailable indicates the backing filesystem could not be
	// used at all (for example the save directory cannot be created).
	ErrStorageUnavailable = errors.New("fxflash: storage unavailable")

	// ErrOpenFailed indicates a blob file could not be opened or created.
	ErrOpenFailed = errors.New("fxflash: open failed")

	// ErrShortRead indicates fewer bytes were read than requested.
	//
	// For bulk cursor reads the missing bytes were filled with 0xFF.
	ErrShortRead = errors.New("fxflash: short read")

	// ErrShortWrite indicates fewer bytes were written than requested, or the
	// written bytes could not be synced.
	ErrShortWrite = errors.New("fxflash: short write")

	// ErrRecordSizeMismatch indicates the save block holds no record with the
	// requested payload size.
	ErrRecordSizeMismatch = errors.New("fxflash: no save record of that size")

	// ErrInvalidInput indicates invalid arguments or options.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("fxflash: invalid input")

	// ErrClosed indicates the engine is not open.
	ErrClosed = errors.New("fxflash: engine not open")

	// ErrBusy indicates another process holds the save lock.
	//
	// Only returned when [Options.LockSave] is set.
	ErrBusy = errors.New("fxflash: save file busy")
)
