// Package cli is the cloudops command line: demo scenarios against the
// in-memory platform, an admin server, SSH tunnels, and a status client.
package cli

import (
	"github.com/spf13/cobra"

	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/common/log"
	"github.com/bootdash/cloudops/config/opsconfig"
)

const defaultConfig = "local.json"

// CLI wraps the cobra command tree.
type CLI struct {
	rootCmd *cobra.Command

	config   string
	logLevel string
}

func (c *CLI) Exec() error {
	return c.rootCmd.Execute()
}

func NewCLI() *CLI {
	c := &CLI{}
	c.rootCmd = &cobra.Command{
		Use:           "cloudops",
		Short:         "cloudops schedules app operations against a deployment target",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := log.Init(c.logLevel); err != nil {
				return opserrors.NewExitCodeError(err, opserrors.ConfigFailureExitCode)
			}
			return nil
		},
	}
	c.rootCmd.PersistentFlags().StringVar(&c.config, "config", defaultConfig, "bundled config name or literal JSON")
	c.rootCmd.PersistentFlags().StringVar(&c.logLevel, "log_level", "info", "error|warn|info|debug")

	c.addCmd(&demoCmd{})
	c.addCmd(&serveCmd{})
	c.addCmd(&tunnelCmd{})
	c.addCmd(&statusCmd{})
	return c
}

// load builds components from --config. Config errors map to ConfigFailureExitCode.
func (c *CLI) load() (*opsconfig.Components, error) {
	comps, err := opsconfig.Load(c.config, nil)
	if err != nil {
		return nil, opserrors.NewExitCodeError(err, opserrors.ConfigFailureExitCode)
	}
	return comps, nil
}

func (c *CLI) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}

type command interface {
	registerFlags() *cobra.Command
	run(cl *CLI, cmd *cobra.Command, args []string) error
}
