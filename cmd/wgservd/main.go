package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"wgserv/internal/buildinfo"
	"wgserv/internal/logging"
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:           "wgservd",
		Short:         "Userspace WireGuard server with a TCP relay",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logging.LevelFor(debug))
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.AddCommand(runCmd(), checkCmd(), sampleConfigCmd(), genkeyCmd(), pubkeyCmd())
	return cmd
}
