// Package cli wires the command line surface of the daemon.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dzli1/blocking/internal/blocker/app"
	"github.com/dzli1/blocking/internal/blocker/common/log"
	"github.com/dzli1/blocking/internal/blocker/config"
)

// NewRootCmd builds the daemon command tree.
func NewRootCmd(version string) *cobra.Command {
	var flags Flags

	cmd := &cobra.Command{
		Use:   "blockingd",
		Short: "Hosts table website blocker",
		Long: "blockingd keeps a managed region of the hosts table pointing distracting\n" +
			"sites at a local address, with timed exceptions and a loopback control API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			flags.Apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			if err := checkPrivileges(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, *cfg)
		},
	}
	flags.Register(cmd)
	cmd.AddCommand(NewVersionCmd(version))
	return cmd
}

// checkPrivileges refuses to start without the rights to rewrite the
// hosts table.
func checkPrivileges() error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if os.Geteuid() != 0 {
		return fmt.Errorf("rewriting the hosts table requires root, re-run with sudo")
	}
	return nil
}
