// Command idp-ctl is the command line tool for the identifier-resolution
// service: it resolves identifiers, checks servers, and manages
// administrator keys.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/teleinfo-cn/idpointer/cmd"
	"github.com/teleinfo-cn/idpointer/cmd/idp-ctl/common"
	"github.com/teleinfo-cn/idpointer/cmd/idp-ctl/help"
	"github.com/teleinfo-cn/idpointer/cmd/idp-ctl/keygen"
	"github.com/teleinfo-cn/idpointer/cmd/idp-ctl/ping"
	"github.com/teleinfo-cn/idpointer/cmd/idp-ctl/resolve"
)

func main() {
	m := NewMain()
	if err := m.Run(os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program execution.
type Main struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewMain returns a new instance of Main.
func NewMain() *Main {
	return &Main{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run determines and runs the command specified by the CLI args.
func (m *Main) Run(args ...string) error {
	cOpts, args, err := m.parseFlags(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	}
	name, args := cmd.ParseCommandName(args)

	switch name {
	case "", "help":
		if err := help.NewCommand().Run(args...); err != nil {
			return fmt.Errorf("help: %s", err)
		}
	case "resolve":
		cmd := resolve.NewCommand(cOpts)
		if err := cmd.Run(args...); err != nil {
			return fmt.Errorf("resolve: %s", err)
		}
	case "ping":
		cmd := ping.NewCommand(cOpts)
		if err := cmd.Run(args...); err != nil {
			return fmt.Errorf("ping: %s", err)
		}
	case "keygen":
		cmd := keygen.NewCommand()
		if err := cmd.Run(args...); err != nil {
			return fmt.Errorf("keygen: %s", err)
		}
	default:
		return fmt.Errorf(`unknown command "%s"`+"\n"+`Run 'idp-ctl help' for usage`+"\n\n", name)
	}

	return nil
}

func (m *Main) parseFlags(args []string) (*common.Options, []string, error) {
	options := &common.Options{}
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.StringVar(&options.Server, "server", "", "Address of the identifier server")
	fs.StringVar(&options.ConfigPath, "config", "", "Config file path")
	fs.BoolVar(&options.UseTLS, "tls", false, "Use TLS")
	fs.BoolVar(&options.SkipTLS, "k", false, "Skip certificate verification (ignored without -tls)")
	fs.Usage = func() { help.NewCommand().Run(args...) }
	if err := fs.Parse(args); err != nil {
		return options, args, err
	}
	return options, fs.Args(), nil
}
