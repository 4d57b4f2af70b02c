// Package resolve is the resolve subcommand of the idp-ctl command.
package resolve

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teleinfo-cn/idpointer/cmd/idp-ctl/common"
)

// Command represents the program execution for "idp-ctl resolve".
type Command struct {
	Stdout io.Writer
	Stderr io.Writer
	cOpts  *common.Options

	types   string
	indexes string
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
	if len(args) == 0 {
		return fmt.Errorf("at least one identifier is required")
	}

	types, indexes, err := cmd.filters()
	if err != nil {
		return err
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

	ctx, cancel := context.WithTimeout(context.Background(), cmd.timeout)
	defer cancel()

	for _, id := range args {
		values, err := c.ResolveFiltered(ctx, id, types, indexes)
		if err != nil {
			return common.OperationExitedError(err)
		}

		fmt.Fprintf(cmd.Stdout, "%s\n", id)
		for _, v := range values {
			fmt.Fprintf(cmd.Stdout, "  %5d  %-12s  ttl=%-6d  %s\n", v.Index, v.Type, v.TTL, v.Data)
		}
	}
	return nil
}

func (cmd *Command) filters() (types []string, indexes []uint32, err error) {
	if cmd.types != "" {
		types = strings.Split(cmd.types, ",")
	}
	if cmd.indexes != "" {
		for _, s := range strings.Split(cmd.indexes, ",") {
			idx, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid index %q", s)
			}
			indexes = append(indexes, uint32(idx))
		}
	}
	return types, indexes, nil
}

func (cmd *Command) parseFlags(args []string) ([]string, error) {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.StringVar(&cmd.types, "type", "", "Comma-separated value types to return (default all)")
	fs.StringVar(&cmd.indexes, "index", "", "Comma-separated value indexes to return (default all)")
	fs.DurationVar(&cmd.timeout, "timeout", 30*time.Second, "Overall resolution timeout")
	fs.SetOutput(cmd.Stdout)
	fs.Usage = func() { fmt.Fprintln(cmd.Stdout, strings.TrimSpace(usage)) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

const usage = `
Usage: idp-ctl resolve [options] <identifier> [<identifier>...]

Resolves identifiers and prints their values.

Options:

  -type string
    	Comma-separated value types to return (default all)
  -index string
    	Comma-separated value indexes to return (default all)
  -timeout duration
    	Overall resolution timeout (default 30s)
`
