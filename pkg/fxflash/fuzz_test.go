package fxflash_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

// byteStream derives values from fuzz input. Once exhausted it yields
// zeros, so the same input always produces the same operations.
type byteStream struct {
	b   []byte
	pos int
}

func (s *byteStream) more() bool { return s.pos < len(s.b) }

func (s *byteStream) next() byte {
	if s.pos >= len(s.b) {
		return 0
	}

	v := s.b[s.pos]
	s.pos++

	return v
}

func (s *byteStream) uint16() uint16 {
	return uint16(s.next())<<8 | uint16(s.next())
}

func (s *byteStream) bytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = s.next()
	}

	return out
}

// saveModel tracks the one record a scan can reach. A save of any size
// lands at offset 0, so the latest save is the only loadable record.
type saveModel struct {
	cur []byte
}

func (m *saveModel) put(p []byte) { m.cur = bytes.Clone(p) }

func (m *saveModel) erase() { m.cur = nil }

func (m *saveModel) get(size int) ([]byte, bool) {
	if m.cur == nil || len(m.cur) != size {
		return nil, false
	}

	return m.cur, true
}

// expectData returns what a read of n bytes at abs should produce.
func expectData(blob []byte, abs uint32, n int) ([]byte, bool) {
	out := make([]byte, n)
	short := false

	for i := range out {
		a := int(abs) + i
		if a < len(blob) {
			out[i] = blob[a]
		} else {
			out[i] = 0xFF
			short = true
		}
	}

	return out, short
}

func FuzzEngine_Reads_And_Saves_Match_Model(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x10, 0x00, 0x00, 0x40})
	f.Add(bytes.Repeat([]byte{0x03, 0x20, 0x11}, 40))
	f.Add(bytes.Repeat([]byte{0x00, 0x02, 0x00, 0x7f, 0x01}, 50))

	f.Fuzz(func(t *testing.T, in []byte) {
		s := &byteStream{b: in}

		blob := patternBlob(int(s.uint16()) % 3000)
		pageCount := 2 + int(s.next())%3

		opts := testOptions(t, blob, fxflash.MinPageSize, pageCount)

		eng, err := fxflash.Open(opts)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		defer func() { _ = eng.End() }()

		model := &saveModel{}

		const maxSteps = 200

		for step := 0; step < maxSteps && s.more(); step++ {
			switch s.next() % 7 {
			case 0:
				addr := uint32(s.uint16() % 4096)
				n := 1 + int(s.next())

				got := make([]byte, n)
				err := eng.ReadDataBytes(addr, got)

				want, short := expectData(blob, addr, n)
				if !bytes.Equal(got, want) {
					t.Fatalf("step %d: ReadDataBytes(%d, %d) mismatch", step, addr, n)
				}

				if short != errors.Is(err, fxflash.ErrShortRead) {
					t.Fatalf("step %d: ReadDataBytes(%d, %d) err=%v, short=%t", step, addr, n, err, short)
				}

			case 1:
				addr := uint32(s.uint16() % 4096)
				n := 1 + int(s.next()%16)

				eng.SeekData(addr)

				want, _ := expectData(blob, addr, n)
				for i := range n {
					if got := eng.ReadPendingUint8(); got != want[i] {
						t.Fatalf("step %d: byte %d at %d = %#x, want %#x", step, i, addr, got, want[i])
					}
				}

				eng.ReadEnd()

			case 2:
				addr := uint32(s.next()) << 2
				index := s.next()

				want, _ := expectData(blob, addr+uint32(index)*2, 2)
				if got := eng.ReadIndexedUint16(addr, index); got != uint16(want[0])<<8|uint16(want[1]) {
					t.Fatalf("step %d: ReadIndexedUint16(%d, %d) = %#x, want % x", step, addr, index, got, want)
				}

			case 3:
				p := s.bytes(1 + int(s.next()%64))

				if err := eng.SaveGameState(p); err != nil {
					t.Fatalf("step %d: SaveGameState: %v", step, err)
				}

				model.put(p)

			case 4:
				size := 1 + int(s.next()%64)
				got := make([]byte, size)
				err := eng.LoadGameState(got)

				want, ok := model.get(size)
				if !ok {
					if !errors.Is(err, fxflash.ErrRecordSizeMismatch) {
						t.Fatalf("step %d: LoadGameState(%d) err=%v, want mismatch", step, size, err)
					}

					continue
				}

				if err != nil || !bytes.Equal(got, want) {
					t.Fatalf("step %d: LoadGameState(%d) = % x, %v, want % x", step, size, got, err, want)
				}

			case 5:
				if err := eng.End(); err != nil {
					t.Fatalf("step %d: End: %v", step, err)
				}

				if err := eng.Begin(); err != nil {
					t.Fatalf("step %d: Begin: %v", step, err)
				}

			case 6:
				if err := eng.EraseSaveBlock(); err != nil {
					t.Fatalf("step %d: EraseSaveBlock: %v", step, err)
				}

				model.erase()
			}
		}

		records, err := eng.SaveRecords()
		if err != nil {
			t.Fatalf("SaveRecords: %v", err)
		}

		wantLen := 0
		if model.cur != nil {
			wantLen = 1
		}

		if got := len(records); got != wantLen {
			t.Fatalf("len(records)=%d, want=%d", got, wantLen)
		}

		if wantLen == 1 && records[0].Size != len(model.cur) {
			t.Fatalf("record size=%d, want=%d", records[0].Size, len(model.cur))
		}
	})
}
