package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/callguard/config"
	"github.com/vinayprograms/callguard/guard"
	"github.com/vinayprograms/callguard/llm"
	"github.com/vinayprograms/callguard/logging"
)

var (
	chatProvider string
	chatSystem   string
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send one prompt to a configured LLM provider",
	Long: `Send a single prompt to a provider declared under [providers.<name>].
The request goes through the provider's guard, so it waits for a limiter
slot and is retried on rate-limit and server errors.

Example:
  callguard chat --provider anthropic "Summarize RFC 9110 in one line"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runChat(ctx, cmd.OutOrStdout(), cfg, logger, chatProvider, chatSystem, strings.Join(args, " "))
	},
}

func runChat(ctx context.Context, out io.Writer, cfg *config.Config, logger *logging.Logger, provider, system, prompt string) error {
	guards, err := guard.NewRegistry(cfg, guard.RegistryOptions{Logger: logger})
	if err != nil {
		return err
	}
	p, err := llm.FromConfig(ctx, cfg, guards, provider)
	if err != nil {
		return err
	}

	var msgs []llm.Message
	if system != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: system})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: prompt})

	resp, err := p.Chat(ctx, llm.ChatRequest{Messages: msgs})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Content)
	logger.Info("chat_complete", map[string]interface{}{
		"model":         resp.Model,
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&chatProvider, "provider", "anthropic", "provider section to use")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "optional system prompt")
	rootCmd.AddCommand(chatCmd)
}
