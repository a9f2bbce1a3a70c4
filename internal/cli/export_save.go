package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

// ExportSaveCmd returns the export-save command.
func ExportSaveCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("export-save", flag.ContinueOnError),
		Usage: "export-save <file>",
		Short: "Copy the save block to a file",
		Long: `Write the full save block (4096 bytes, including uncommitted changes)
to <file>. The file is replaced atomically.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execExportSave(o, a, args)
		},
	}
}

func execExportSave(o *IO, a *app, args []string) error {
	if len(args) != 1 {
		return usageError("export-save <file>")
	}

	path := args[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.cfg.EffectiveCwd, path)
	}

	eng, err := a.engine()
	if err != nil {
		return err
	}

	buf := make([]byte, fxflash.SaveBlockSize)

	err = eng.ReadSaveBytes(0, buf)
	if err != nil && !errors.Is(err, fxflash.ErrShortRead) {
		return err
	}

	if err != nil {
		o.Warn(err.Error(), "unreadable bytes were exported as ff")
	}

	werr := atomic.WriteFile(path, bytes.NewReader(buf))
	if werr != nil {
		return fmt.Errorf("writing %s: %w", path, werr)
	}

	o.Printf("exported %d bytes to %s\n", len(buf), path)

	return nil
}
