package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"AdobeDigest/internal/app"
	"AdobeDigest/internal/config"
	"AdobeDigest/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() config.Config {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config = config.Load(path)
	})
	return c.config
}

// logger returns the base logger tagged with the command name and a fresh run id.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	cfg := c.ensureConfig()
	return logging.WithRun(logging.New(cfg.Logging.Level), cmd.Name(), uuid.NewString())
}

// application opens the wiring for one command. Callers must Close it.
func (c *commandContext) application(cmd *cobra.Command) (*app.Application, *slog.Logger, error) {
	logger := c.logger(cmd)
	application, err := app.New(cmd.Context(), c.ensureConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}
