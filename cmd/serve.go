package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Read messages from stdin, one per line, and drive the agent loop continuously",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}

			app, err := buildApp()
			if err != nil {
				return err
			}

			ctx := context.Background()
			initialPrompt := composeSystemPrompt(app.RulesDir, "", nil)
			proc, err := newSubprocess(ctx, app.Workspace, initialPrompt)
			if err != nil {
				return err
			}

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				app.Sessions.AddMessage(channelKey, content.Message{Role: content.RoleUser, Text: line})
				keywords := app.Detector.Detect(line)
				sysPrompt := composeSystemPrompt(app.RulesDir, line, keywords)

				res := app.Loop.Run(ctx, newLoopRequest(channelKey, line, sysPrompt, proc))
				if res.Err != nil {
					fmt.Fprintf(os.Stderr, "error: %s (%s)\n", res.Err.Message, res.Err.Code)
					continue
				}
				app.Sessions.AddMessage(channelKey, content.Message{Role: content.RoleAssistant, Text: res.FinalText})
				fmt.Println(res.FinalText)
			}
			return scanner.Err()
		},
	}
}
