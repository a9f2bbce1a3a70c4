package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

const defaultDumpLen = 64

// DumpCmd returns the dump command.
func DumpCmd(a *app) *Command {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.Bool("save", false, "Read the save block instead of the data blob")
	fs.Int("len", defaultDumpLen, "Number of bytes to dump")

	return &Command{
		Flags: fs,
		Usage: "dump [--save] [--len N] <addr>",
		Short: "Hex dump bytes through the engine cursor",
		Long: `Hex dump bytes at <addr>. Data addresses are local: the program page
register is added. Bytes past the end of a blob print as ff.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execDump(o, a, fs, args)
		},
	}
}

func execDump(o *IO, a *app, fs *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return usageError("dump [--save] [--len N] <addr>")
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}

	n, _ := fs.GetInt("len")
	if n <= 0 {
		return fmt.Errorf("--len must be positive, got %d", n)
	}

	save, _ := fs.GetBool("save")

	eng, err := a.engine()
	if err != nil {
		return err
	}

	buf := make([]byte, n)

	var readErr error
	if save {
		readErr = eng.ReadSaveBytes(addr, buf)
	} else {
		readErr = eng.ReadDataBytes(addr, buf)
	}

	if readErr != nil && !errors.Is(readErr, fxflash.ErrShortRead) {
		return readErr
	}

	start := addr
	if !save {
		start = eng.Offset() - uint32(n)
	}

	o.Printf("%s", hexDump(start, buf))

	if readErr != nil {
		o.Warn(readErr.Error(), "bytes shown as ff were not read from the blob")
	}

	return nil
}
