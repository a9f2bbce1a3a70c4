package fxflash

// absolute converts a local data address into an offset in the data blob.
// Arithmetic wraps at 32 bits.
func absolute(local uint32, programPage uint16) uint32 {
	return local + uint32(programPage)<<8
}

// arrayAddress returns the local address of element index of an array of
// elementSize-byte elements at base, plus offset. An elementSize of 0 means
// 256-byte elements.
func arrayAddress(base uint32, index, offset, elementSize uint8) uint32 {
	stride := uint32(elementSize)
	if stride == 0 {
		stride = 256
	}

	return base + uint32(index)*stride + uint32(offset)
}

// alignDown rounds v down to a multiple of size. size need not be a power
// of two.
func alignDown(v, size uint32) uint32 {
	return v - v%size
}
