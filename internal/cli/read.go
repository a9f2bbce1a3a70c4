package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// ReadCmd returns the read-u8/u16/u24/u32 command for width bytes.
func ReadCmd(a *app, width int) *Command {
	name := fmt.Sprintf("read-u%d", width*8)

	return &Command{
		Flags: flag.NewFlagSet(name, flag.ContinueOnError),
		Usage: name + " <addr> [index]",
		Short: fmt.Sprintf("Read a big-endian %d-bit value", width*8),
		Long: fmt.Sprintf(`Read element [index] (default 0) of a big-endian %d-bit array at the
local data address <addr>.`, width*8),
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execRead(o, a, name, width, args)
		},
	}
}

func execRead(o *IO, a *app, name string, width int, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError(name + " <addr> [index]")
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}

	var index uint8
	if len(args) == 2 {
		index, err = parseUint8("index", args[1])
		if err != nil {
			return err
		}
	}

	eng, err := a.engine()
	if err != nil {
		return err
	}

	var v uint32

	switch width {
	case 1:
		v = uint32(eng.ReadIndexedUint8(addr, index))
	case 2:
		v = uint32(eng.ReadIndexedUint16(addr, index))
	case 3:
		v = eng.ReadIndexedUint24(addr, index)
	default:
		v = eng.ReadIndexedUint32(addr, index)
	}

	o.Printf("0x%0*x %d\n", width*2, v, v)

	return nil
}
