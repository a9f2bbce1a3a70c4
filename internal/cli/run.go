package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fxflash/internal/config"
	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal on it cancels the command context.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(out, errOut)

	globals := newGlobalFlags()

	err := globals.fs.Parse(args[min(1, len(args)):])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(o, globals, commands(&app{}))

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		printUsage(NewIO(errOut, errOut), globals, commands(&app{}))

		return 1
	}

	rest := globals.fs.Args()
	if len(rest) == 0 || globals.help {
		printUsage(o, globals, commands(&app{}))

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: globals.workDir,
		ConfigPath:      globals.configPath,
		Env:             env,
		Overrides:       globals.overrides(),
	})
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	level := slog.LevelWarn
	if globals.verbose {
		level = slog.LevelDebug
	}

	a := &app{
		cfg: cfg,
		in:  in,
		log: slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	code := dispatch(ctx, a, o, rest)

	closeErr := a.close()
	if closeErr != nil {
		o.ErrPrintln("error:", closeErr)

		return 1
	}

	return code
}

// dispatch runs one command line (name + args) against a.
func dispatch(ctx context.Context, a *app, o *IO, argv []string) int {
	name := argv[0]

	for _, cmd := range commands(a) {
		if cmd.Name() == name {
			return cmd.Run(ctx, o, argv[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", name)

	return 1
}

// commands returns fresh command instances. pflag keeps parsed values, so
// every invocation (including each shell line) needs new flag sets.
func commands(a *app) []*Command {
	return []*Command{
		InfoCmd(a),
		DumpCmd(a),
		ReadCmd(a, 1),
		ReadCmd(a, 2),
		ReadCmd(a, 3),
		ReadCmd(a, 4),
		SaveCmd(a),
		ExportSaveCmd(a),
		WarmCmd(a),
		ShellCmd(a),
		PrintConfigCmd(a),
	}
}

// app is the state shared by commands of one Run: the resolved config and
// the engine, opened on first use.
type app struct {
	cfg config.Config
	log *slog.Logger
	in  io.Reader
	eng *fxflash.Engine
}

func (a *app) engine() (*fxflash.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}

	opts := a.cfg.Options()
	opts.Logger = a.log

	eng, err := fxflash.Open(opts)
	if err != nil {
		return nil, err
	}

	a.eng = eng

	return eng, nil
}

func (a *app) close() error {
	if a.eng == nil {
		return nil
	}

	err := a.eng.End()
	a.eng = nil

	return err
}

type globalFlags struct {
	fs *flag.FlagSet

	workDir    string
	configPath string
	verbose    bool
	help       bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{fs: flag.NewFlagSet("fxflash", flag.ContinueOnError)}

	fs := g.fs
	fs.SetInterspersed(false)
	fs.SetOutput(&strings.Builder{})
	fs.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fs.StringVarP(&g.configPath, "config", "c", "", "Use config `file`")
	fs.String("data", "", "Data blob `path`")
	fs.String("save", "", "Save blob `path`")
	fs.Uint16("program-page", 0, "Data page register (256-byte units)")
	fs.Uint16("save-page", 0, "Save page register")
	fs.Int("page-size", 0, "Cache page size in bytes (multiple of 512)")
	fs.Int("page-count", 0, "Number of cache pages")
	fs.Bool("lock", false, "Hold an exclusive lock on the save blob")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "Log engine activity to stderr")
	fs.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

// overrides returns the flags the user actually set.
func (g *globalFlags) overrides() config.Overrides {
	var ov config.Overrides

	fs := g.fs

	if fs.Changed("data") {
		v, _ := fs.GetString("data")
		ov.DataPath = &v
	}

	if fs.Changed("save") {
		v, _ := fs.GetString("save")
		ov.SavePath = &v
	}

	if fs.Changed("program-page") {
		v, _ := fs.GetUint16("program-page")
		ov.ProgramPage = &v
	}

	if fs.Changed("save-page") {
		v, _ := fs.GetUint16("save-page")
		ov.SavePage = &v
	}

	if fs.Changed("page-size") {
		v, _ := fs.GetInt("page-size")
		ov.PageSize = &v
	}

	if fs.Changed("page-count") {
		v, _ := fs.GetInt("page-count")
		ov.PageCount = &v
	}

	if fs.Changed("lock") {
		v, _ := fs.GetBool("lock")
		ov.LockSave = &v
	}

	return ov
}

func printUsage(o *IO, g *globalFlags, cmds []*Command) {
	o.Println("fxflash - virtual FX flash over host files")
	o.Println()
	o.Println("Usage: fxflash [global flags] <command> [args]")
	o.Println()
	o.Println("Global flags:")

	var buf strings.Builder
	g.fs.SetOutput(&buf)
	g.fs.PrintDefaults()
	g.fs.SetOutput(&strings.Builder{})
	o.Printf("%s", buf.String())

	o.Println()
	o.Println("Commands:")

	for _, cmd := range cmds {
		o.Println(cmd.HelpLine())
	}

	o.Println()
	o.Println(`Run "fxflash <command> --help" for command flags.`)
}

func printStats(o *IO, s fxflash.CacheStats) {
	o.Printf("hits=%d misses=%d loads=%d prefetches=%d evictions=%d load_failures=%d\n",
		s.Hits, s.Misses, s.Loads, s.Prefetches, s.Evictions, s.LoadFailures)
}

var errUsage = errors.New("usage")

func usageError(usage string) error {
	return fmt.Errorf("%w: fxflash %s", errUsage, usage)
}
