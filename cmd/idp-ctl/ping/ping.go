// Package ping is the ping subcommand of the idp-ctl command.
package ping

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/teleinfo-cn/idpointer/cmd/idp-ctl/common"
)

// Command represents the program execution for "idp-ctl ping".
type Command struct {
	Stdout io.Writer
	Stderr io.Writer
	cOpts  *common.Options

	count   int
	timeout time.Duration
}

// NewCommand returns a new instance of Command.
func NewCommand(cOpts *common.Options) *Command {
	return &Command{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		cOpts:  cOpts,
	}
}

// Run executes the program.
func (cmd *Command) Run(args ...string) error {
	args, err := cmd.parseFlags(args)
	if err != nil {
		return nil
	}
	if len(args) > 0 {
		return fmt.Errorf("unexpected extra arguments: %v", args)
	}

	f, err := common.NewFactory(cmd.cOpts)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := f.NewClient()
	if err != nil {
		return err
	}

	for i := 0; i < cmd.count; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cmd.timeout)
		start := time.Now()
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			return common.OperationExitedError(err)
		}
		fmt.Fprintf(cmd.Stdout, "response from %s: time=%s\n", c.Endpoint(), time.Since(start).Round(time.Microsecond))
	}
	return nil
}

func (cmd *Command) parseFlags(args []string) ([]string, error) {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.IntVar(&cmd.count, "n", 1, "Number of pings to send")
	fs.DurationVar(&cmd.timeout, "timeout", 10*time.Second, "Per-ping timeout")
	fs.SetOutput(cmd.Stdout)
	fs.Usage = func() { fmt.Fprintln(cmd.Stdout, strings.TrimSpace(usage)) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

const usage = `
Usage: idp-ctl ping [options]

Checks that the identifier server is reachable and answering.

Options:

  -n int
    	Number of pings to send (default 1)
  -timeout duration
    	Per-ping timeout (default 10s)
`
