package cli_test

import (
	"testing"

	"github.com/calvinalkan/fxflash/internal/cli"
)

func Test_Dump_Prints_Hex_Rows_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(2048))

	stdout := c.MustRun("dump", "--len", "20", "0")

	cli.AssertContains(t, stdout, "00000000  41 52 02 03 04 05 06 07  08 09 0a 0b 0c 0d 0e 0f  |AR..............|")
	cli.AssertContains(t, stdout, "00000010  10 11 12 13")
}

func Test_Dump_Labels_Absolute_Addresses_When_Program_Page_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(2048))

	stdout := c.MustRun("--program-page", "2", "dump", "--len", "4", "0x30")

	cli.AssertContains(t, stdout, "00000230  30 31 32 33")
}

func Test_Dump_Past_End_Warns_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(2048))

	stdout, stderr, exitCode := c.Run("dump", "--len", "16", "2040")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "000007f8  f8 f9 fa fb fc fd fe ff  ff ff ff ff ff ff ff ff")
	cli.AssertContains(t, stderr, "warning: 8 of 16 bytes unavailable")
	cli.AssertContains(t, stderr, "fxflash: short read")
}

func Test_Dump_Save_Block_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(512))
	c.MustRun("save", "put", "cafe")

	stdout := c.MustRun("dump", "--save", "--len", "8", "0")

	cli.AssertContains(t, stdout, "00000000  00 02 ca fe ff ff ff ff")
}

func Test_Dump_Rejects_Non_Positive_Len_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(512))

	cli.AssertContains(t, c.MustFail("dump", "--len", "0", "0"), "--len must be positive")
}
