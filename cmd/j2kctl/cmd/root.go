package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cinderblocks/corej2k/logging"
	"github.com/spf13/cobra"
)

// NewRoot builds the j2kctl command tree.
func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "j2kctl",
		Short: "inspect, encode and decode JPEG 2000 codestreams",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")

			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
				slog.WarnContext(ctx, "invalid log level, defaulting to INFO", "level", logLevel)
			}
			if logFile != "" {
				slog.SetDefault(logging.FileLogger(logFile, 50, 3, level))
			} else {
				slog.SetDefault(logging.Logger(os.Stderr, false, level))
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewInfoCmd(ctx),
		NewEncodeCmd(ctx),
		NewDecodeCmd(ctx),
		NewRoundtripCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "Rotating log file path (default stderr)")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

// NewVersionCmd reports the git sha baked into the build.
func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
}
