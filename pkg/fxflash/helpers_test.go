package fxflash_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

// patternBlob returns n bytes where byte i is i mod 256.
func patternBlob(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}

	return b
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// testOptions writes data to a fresh data blob and returns options pointing
// at it and at a save path that does not exist yet.
func testOptions(t *testing.T, data []byte, pageSize, pageCount int) fxflash.Options {
	t.Helper()

	dir := t.TempDir()
	dataPath := filepath.Join(dir, "fxdata.bin")
	writeFile(t, dataPath, data)

	return fxflash.Options{
		DataPath:  dataPath,
		SavePath:  filepath.Join(dir, "save", "fxsave.bin"),
		PageSize:  pageSize,
		PageCount: pageCount,
	}
}

func openEngine(t *testing.T, opts fxflash.Options) *fxflash.Engine {
	t.Helper()

	eng, err := fxflash.Open(opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = eng.End()
	})

	return eng
}

// erasedBlock returns a 4096-byte 0xFF block.
func erasedBlock() []byte {
	return bytes.Repeat([]byte{0xFF}, fxflash.SaveBlockSize)
}
