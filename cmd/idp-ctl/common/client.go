package common

import (
	"fmt"
	"os"

	"github.com/teleinfo-cn/idpointer/client"
	"github.com/teleinfo-cn/idpointer/logger"
)

// NewFactory builds an open client factory from the command line options,
// layering them over the config file when one is given.
func NewFactory(cOpts *Options) (*client.Factory, error) {
	c := client.NewConfig()
	if cOpts.ConfigPath != "" {
		var err error
		if c, err = client.FromTomlFile(cOpts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if cOpts.Server != "" {
		c.Server = cOpts.Server
	}
	if cOpts.UseTLS {
		c.UseTLS = true
	}
	if cOpts.SkipTLS {
		c.InsecureTLS = true
	}

	f, err := client.NewFactory(c)
	if err != nil {
		return nil, err
	}
	f.WithLogger(logger.New(os.Stderr))
	if err := f.Open(); err != nil {
		return nil, err
	}
	return f, nil
}

// OperationExitedError wraps an operation failure for display.
func OperationExitedError(err error) error {
	if err != nil {
		return fmt.Errorf("operation exited with error: %s", err)
	}
	return nil
}
