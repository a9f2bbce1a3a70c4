package cli_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/fxflash/internal/cli"
)

func Test_Info_Reports_Blob_And_Geometry_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(2048))

	stdout := c.MustRun("--page-size", "1024", "--page-count", "4", "info")

	for _, want := range []string{
		"data_path=" + c.Dir + "/fxdata.bin",
		"save_path=" + c.Dir + "/fxsave.bin",
		"data_size=2048",
		"page_size=1024",
		"page_count=4",
		"detect=true",
		"signature=true",
		"save_records=0",
		"save_used=0",
	} {
		cli.AssertContains(t, stdout, want)
	}
}

func Test_Info_Counts_Save_Usage_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(512))
	c.MustRun("save", "put", "01")
	c.MustRun("save", "put", "0203")

	stdout := c.MustRun("info")

	cli.AssertContains(t, stdout, "save_records=1")
	cli.AssertContains(t, stdout, "save_used=4")
}

func Test_Info_Warns_On_Empty_Data_Blob_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(nil)

	stdout, stderr, exitCode := c.Run("info")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "detect=false")
	cli.AssertContains(t, stdout, "signature=false")
	cli.AssertContains(t, stderr, "warning: data blob is empty or unreadable")
}

func Test_Info_Reports_Missing_Signature_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	blob := testBlob(512)
	blob[0] = 'X'
	c.WriteData(blob)

	stdout := c.MustRun("info")

	cli.AssertContains(t, stdout, "detect=true")
	cli.AssertContains(t, stdout, "signature=false")
}

func Test_Warm_Loads_Pages_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(2048))

	stdout := c.MustRun("--page-size", "512", "warm", "0", "2048")

	cli.AssertContains(t, stdout, "misses=4 loads=4")
}

func Test_Warm_Past_End_Warns_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(2048))

	stdout, stderr, exitCode := c.Run("--page-size", "512", "warm", "0", "4096")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	// Four pages past the end plus the prefetch of the first of them.
	cli.AssertContains(t, stdout, "load_failures=5")
	cli.AssertContains(t, stderr, "4 pages could not be loaded")
}

func Test_Shell_Keeps_Engine_Open_Between_Commands_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(2048))

	script := strings.Join([]string{
		"# comment lines are skipped",
		"read-u8 0x10",
		"",
		"read-u8 0x11",
		"warm 0 16",
		"save put 0102",
		"exit",
		"read-u8 0x12",
	}, "\n")

	stdout, stderr, exitCode := c.RunWithInput(script, "shell")

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d, stderr=%s", got, want, stderr)
	}

	cli.AssertContains(t, stdout, "0x10 16\n0x11 17\n")
	cli.AssertContains(t, stdout, "hits=2 misses=1 loads=1 prefetches=0 evictions=0 load_failures=0")
	cli.AssertContains(t, stdout, "saved 2 bytes")
	cli.AssertNotContains(t, stdout, "0x12 18")

	if got, want := c.MustRun("save", "get", "2"), "0102"; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}
}

func Test_Shell_Reports_Failed_Commands_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteData(testBlob(512))

	stdout, stderr, exitCode := c.RunWithInput("bogus\nhelp\nread-u8 0\n", "shell")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "unknown command: bogus")
	cli.AssertContains(t, stderr, "1 shell commands failed")
	cli.AssertContains(t, stdout, "Commands:")
	cli.AssertContains(t, stdout, "0x41 65")
}
