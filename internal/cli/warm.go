package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

// WarmCmd returns the warm command.
func WarmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("warm", flag.ContinueOnError),
		Usage: "warm <addr> <len>",
		Short: "Preload cache pages and print cache counters",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execWarm(o, a, args)
		},
	}
}

func execWarm(o *IO, a *app, args []string) error {
	if len(args) != 2 {
		return usageError("warm <addr> <len>")
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}

	n, err := parseLen("len", args[1])
	if err != nil {
		return err
	}

	eng, err := a.engine()
	if err != nil {
		return err
	}

	err = eng.WarmUp(addr, n)
	if err != nil && !errors.Is(err, fxflash.ErrShortRead) {
		return err
	}

	if err != nil {
		o.Warn(err.Error(), "the range extends past the data blob")
	}

	printStats(o, eng.CacheStats())

	return nil
}
