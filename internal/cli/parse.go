package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// parseAddr parses a 32-bit address. Accepts decimal, 0x hex, 0o octal and
// 0b binary.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}

	return uint32(v), nil
}

func parseUint8(name, s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}

	return uint8(v), nil
}

func parseLen(name, s string) (int, error) {
	v, err := strconv.ParseUint(s, 0, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}

	return int(v), nil
}

// parseHex decodes a hex payload. Spaces, colons and a 0x prefix are
// ignored.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}

	return b, nil
}

// hexDump formats b as 16-byte rows labeled with addresses starting at addr.
func hexDump(addr uint32, b []byte) string {
	var sb strings.Builder

	for row := 0; row < len(b); row += 16 {
		line := b[row:min(row+16, len(b))]

		fmt.Fprintf(&sb, "%08x ", addr+uint32(row))

		for i := range 16 {
			if i == 8 {
				sb.WriteByte(' ')
			}

			if i < len(line) {
				fmt.Fprintf(&sb, " %02x", line[i])
			} else {
				sb.WriteString("   ")
			}
		}

		sb.WriteString("  |")

		for _, c := range line {
			if c >= 0x20 && c < 0x7f {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}

		sb.WriteString("|\n")
	}

	return sb.String()
}
