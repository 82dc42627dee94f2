package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"example.com/tlmdecom/internal/common"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// errThreshold is returned when check or report found alarms at or above
// the --fail-on level.
var errThreshold = errors.New("alarm threshold reached")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if errors.Is(err, errThreshold) {
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "decomctl: %v\n", err)
	os.Exit(2)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "decomctl",
		Short:         "Decode telemetry packets against a mission database.",
		Long:          "Decode, monitor and report on telemetry recordings described by a YAML mission database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			common.SetVerbose(GetFlag(cmd, "verbose"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if GetFlag(cmd, "version") {
				fmt.Fprintf(cmd.OutOrStdout(), "decomctl %s (built %s)\n", versionString(), buildDate)
				return nil
			}
			return cmd.Help()
		},
	}
	root.Flags().Bool("version", false, "report version of this executable")
	root.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
	root.AddCommand(newDecodeCmd(), newCheckCmd(), newReportCmd(), newInspectCmd())
	return root
}

func versionString() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return version
}

// GetFlag gets an expected boolean flag, or panics if it is not declared.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		panic(err)
	}
	return r
}
