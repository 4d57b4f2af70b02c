// Package keygen is the keygen subcommand of the idp-ctl command.
package keygen

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/teleinfo-cn/idpointer/pkg/atomicfile"
	"github.com/teleinfo-cn/idpointer/security"
)

// Command represents the program execution for "idp-ctl keygen".
type Command struct {
	Stdout io.Writer
	Stderr io.Writer

	out        string
	passphrase string
}

// NewCommand returns a new instance of Command.
func NewCommand() *Command {
	return &Command{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
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

	key, err := security.GenerateKeyPair()
	if err != nil {
		return err
	}

	if err := security.SavePrivateKey(cmd.out, key, []byte(cmd.passphrase)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "Wrote private key to %s\n", cmd.out)

	pub, err := security.MarshalPublicKey(&key.PublicKey)
	if err != nil {
		return err
	}
	pubPath := cmd.out + ".pub"
	if err := atomicfile.WriteFile(pubPath, pub, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "Wrote public key to %s\n", pubPath)

	if cmd.passphrase == "" {
		fmt.Fprintln(cmd.Stderr, "warning: private key is not passphrase protected")
	}
	return nil
}

func (cmd *Command) parseFlags(args []string) ([]string, error) {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.StringVar(&cmd.out, "out", "idpointer.key", "Path of the private key to write")
	fs.StringVar(&cmd.passphrase, "passphrase", "", "Passphrase protecting the private key")
	fs.SetOutput(cmd.Stdout)
	fs.Usage = func() { fmt.Fprintln(cmd.Stdout, strings.TrimSpace(usage)) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

const usage = `
Usage: idp-ctl keygen [options]

Generates an administrator RSA key pair. The private key is written
encrypted when a passphrase is given; the public key is written next to it
with a .pub suffix.

Options:

  -out string
    	Path of the private key to write (default "idpointer.key")
  -passphrase string
    	Passphrase protecting the private key
`
