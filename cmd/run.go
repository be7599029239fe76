package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [message]",
		Short: "Run a single message through the agent loop and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			message := strings.Join(args, " ")

			app, err := buildApp()
			if err != nil {
				return err
			}

			ctx := context.Background()
			keywords := app.Detector.Detect(message)
			sysPrompt := composeSystemPrompt(app.RulesDir, message, keywords)

			proc, err := newSubprocess(ctx, app.Workspace, sysPrompt)
			if err != nil {
				return err
			}

			res := app.Loop.Run(ctx, newLoopRequest(channelKey, message, sysPrompt, proc))
			if res.Err != nil {
				fmt.Fprintf(os.Stderr, "error: %s (%s)\n", res.Err.Message, res.Err.Code)
				os.Exit(1)
			}
			fmt.Println(res.FinalText)
			return nil
		},
	}
}
