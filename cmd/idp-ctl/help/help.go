// Package help is the help subcommand of the idp-ctl command.
package help

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Command displays help for command-line sub-commands.
type Command struct {
	Stdout io.Writer
}

// NewCommand returns a new instance of Command.
func NewCommand() *Command {
	return &Command{
		Stdout: os.Stdout,
	}
}

// Run executes the command.
func (cmd *Command) Run(args ...string) error {
	fmt.Fprintln(cmd.Stdout, strings.TrimSpace(usage))
	return nil
}

const usage = `
Usage: idp-ctl [options] <command> [options] [<args>]

Available commands are:
   resolve             Resolve identifiers to their values
   ping                Check that an identifier server is answering
   keygen              Generate an administrator key pair

Options:

  -server string
    	Address of the identifier server (default "127.0.0.1:2641")
  -config string
    	Config file path
  -tls
    	Use TLS
  -k	Skip certificate verification (ignored without -tls)
`
