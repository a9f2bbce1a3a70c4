package cli_test

// testBlob returns a data blob that starts with the "AR" signature and
// holds byte(i) at every other offset i.
func testBlob(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}

	b[0], b[1] = 'A', 'R'

	return b
}
