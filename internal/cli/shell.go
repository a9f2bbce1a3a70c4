package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Run commands against one open engine",
		Long: `Read commands line by line and run them against a single engine, so the
page cache and the save mirror persist between commands. Type "help" for
commands and "exit" to quit. The save block is committed on exit.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execShell(ctx, o, a)
		},
	}
}

// lineReader is the input side of the shell.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// scanReader reads lines from a non-terminal input.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }

// linerReader wraps liner with history kept in the user's home directory.
type linerReader struct {
	*liner.State

	history string
}

func newLinerReader() *linerReader {
	r := &linerReader{State: liner.NewLiner()}
	r.SetCtrlCAborts(true)

	home, err := os.UserHomeDir()
	if err == nil {
		r.history = filepath.Join(home, ".fxflash_history")
	}

	if r.history != "" {
		if f, err := os.Open(r.history); err == nil {
			_, _ = r.ReadHistory(f)
			_ = f.Close()
		}
	}

	return r
}

func (r *linerReader) Close() error {
	if r.history != "" {
		if f, err := os.Create(r.history); err == nil {
			_, _ = r.WriteHistory(f)
			_ = f.Close()
		}
	}

	return r.State.Close()
}

func newLineReader(in io.Reader) lineReader {
	if in == os.Stdin && liner.TerminalSupported() {
		return newLinerReader()
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return &scanReader{sc: bufio.NewScanner(in)}
}

func execShell(ctx context.Context, o *IO, a *app) error {
	if _, err := a.engine(); err != nil {
		return err
	}

	lr := newLineReader(a.in)
	defer func() { _ = lr.Close() }()

	failed := 0

	for {
		if ctx.Err() != nil {
			return fmt.Errorf("shell interrupted: %w", ctx.Err())
		}

		line, err := lr.Prompt("fxflash> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lr.AppendHistory(line)

		argv := strings.Fields(line)

		switch argv[0] {
		case "exit", "quit":
			return shellResult(failed)
		case "help", "?":
			printShellHelp(o, a)

			continue
		case "shell":
			o.ErrPrintln("error: already in a shell")

			failed++

			continue
		}

		if dispatch(ctx, a, o, argv) != 0 {
			failed++
		}
	}

	return shellResult(failed)
}

func shellResult(failed int) error {
	if failed > 0 {
		return fmt.Errorf("%d shell commands failed", failed)
	}

	return nil
}

func printShellHelp(o *IO, a *app) {
	o.Println("Commands:")

	for _, cmd := range commands(a) {
		if cmd.Name() == "shell" {
			continue
		}

		o.Println(cmd.HelpLine())
	}

	o.Println("  exit                             Leave the shell")
}
