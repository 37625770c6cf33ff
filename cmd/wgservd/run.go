package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wgserv"
	"wgserv/infra/hostaddr"
	"wgserv/instance"
	"wgserv/internal/logging"
	"wgserv/platform"
)

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a server instance until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			for _, msg := range preflightWarnings(cfg, hostaddr.Assigned) {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}

			reg := instance.NewRegistry(
				instance.WithServices(platform.Services{}),
				// --debug already set the level; a debug config may only raise it.
				instance.WithLogInit(func(debug bool) {
					if debug {
						_ = logging.Configure(logging.LevelDebug)
					}
				}),
			)
			h := reg.Create()
			if err := reg.SetConfig(h, text); err != nil {
				return fmt.Errorf("load %s: %w", configPath, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				slog.Debug("destroying instance", "handle", uint64(h))
				_ = reg.Destroy(h)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "server public key: %s\n", cfg.PublicKey())
			return reg.Run(cmd.Context(), h)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", platform.DefaultConfigPath, "Configuration file")
	return cmd
}

// loadConfig reads and validates a configuration file. The raw text is
// returned too because the registry takes configuration as text.
func loadConfig(path string) (string, wgserv.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", wgserv.Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := wgserv.Parse(string(raw))
	if err != nil {
		return "", wgserv.Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return string(raw), cfg, nil
}
