package cmd

import (
	"os"
	"os/signal"
	"strings"

	"github.com/killallgit/vidchat/pkg/config"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask a question, or chat interactively when none is given",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	if prompt == "" && len(args) > 0 {
		prompt = strings.Join(args, " ")
	}

	cfg := config.Get()
	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	app := NewApp(cfg, src)
	defer app.Close()

	if strings.TrimSpace(prompt) != "" {
		return app.Ask(ctx, prompt, cmd.OutOrStdout())
	}
	return app.Repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
