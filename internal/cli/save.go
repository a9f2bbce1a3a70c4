package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	flag "github.com/spf13/pflag"
)

const saveUsage = "save <ls|get SIZE|put HEX|erase>"

// SaveCmd returns the save command.
func SaveCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("save", flag.ContinueOnError),
		Usage: saveUsage,
		Short: "List, read, write or erase save records",
		Long: `Work with the save block log.

  ls          list records as offset and size
  get SIZE    print the record of SIZE bytes as hex
  put HEX     store HEX as the record of its size and commit
  erase       reset the block to 0xff and commit`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execSave(o, a, args)
		},
	}
}

func execSave(o *IO, a *app, args []string) error {
	if len(args) == 0 {
		return usageError(saveUsage)
	}

	sub, rest := args[0], args[1:]

	switch sub {
	case "ls":
		if len(rest) != 0 {
			return usageError(saveUsage)
		}

		return saveList(o, a)
	case "get":
		if len(rest) != 1 {
			return usageError(saveUsage)
		}

		return saveGet(o, a, rest[0])
	case "put":
		if len(rest) != 1 {
			return usageError(saveUsage)
		}

		return savePut(o, a, rest[0])
	case "erase":
		if len(rest) != 0 {
			return usageError(saveUsage)
		}

		return saveErase(o, a)
	default:
		return fmt.Errorf("unknown save action %q: %w", sub, usageError(saveUsage))
	}
}

func saveList(o *IO, a *app) error {
	eng, err := a.engine()
	if err != nil {
		return err
	}

	records, err := eng.SaveRecords()
	if err != nil {
		return err
	}

	if len(records) == 0 {
		o.Println("(empty)")

		return nil
	}

	for _, r := range records {
		o.Printf("offset=%d size=%d\n", r.Offset, r.Size)
	}

	return nil
}

func saveGet(o *IO, a *app, arg string) error {
	size, err := parseLen("size", arg)
	if err != nil {
		return err
	}

	eng, err := a.engine()
	if err != nil {
		return err
	}

	buf := make([]byte, size)

	err = eng.LoadGameState(buf)
	if err != nil {
		return err
	}

	o.Println(hex.EncodeToString(buf))

	return nil
}

func savePut(o *IO, a *app, arg string) error {
	payload, err := parseHex(arg)
	if err != nil {
		return err
	}

	eng, err := a.engine()
	if err != nil {
		return err
	}

	err = eng.SaveGameState(payload)
	if err != nil {
		return err
	}

	err = eng.Commit()
	if err != nil {
		return err
	}

	o.Printf("saved %d bytes\n", len(payload))

	return nil
}

func saveErase(o *IO, a *app) error {
	eng, err := a.engine()
	if err != nil {
		return err
	}

	err = eng.EraseSaveBlock()
	if err != nil {
		return err
	}

	err = eng.Commit()
	if err != nil {
		return err
	}

	o.Println("erased")

	return nil
}
