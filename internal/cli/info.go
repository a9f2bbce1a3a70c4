package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// InfoCmd returns the info command.
func InfoCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("info", flag.ContinueOnError),
		Usage: "info",
		Short: "Show blob paths, geometry and save usage",
		Long: `Open the engine and report the data blob (size, detect, "AR" signature),
the cache geometry, the save records and the cache counters.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execInfo(o, a)
		},
	}
}

func execInfo(o *IO, a *app) error {
	eng, err := a.engine()
	if err != nil {
		return err
	}

	records, err := eng.SaveRecords()
	if err != nil {
		return err
	}

	used := 0
	for _, r := range records {
		used = r.Offset + 2 + r.Size
	}

	detected := eng.Detect()

	o.Println("data_path=" + eng.DataPath())
	o.Println("save_path=" + eng.SavePath())
	o.Printf("data_size=%d\n", eng.DataSize())
	o.Printf("page_size=%d\n", eng.PageSize())
	o.Printf("page_count=%d\n", eng.PageCount())
	o.Printf("program_page=%d\n", eng.ProgramPage())
	o.Printf("save_page=%d\n", eng.SavePage())
	o.Printf("detect=%t\n", detected)
	o.Printf("signature=%t\n", eng.HasSignature())
	o.Printf("save_records=%d\n", len(records))
	o.Printf("save_used=%d\n", used)
	printStats(o, eng.CacheStats())

	if !detected {
		o.Warn("data blob is empty or unreadable", "check --data points at an FX data file")
	}

	return nil
}
