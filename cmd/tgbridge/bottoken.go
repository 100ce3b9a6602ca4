package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"golang.org/x/term"

	"tgbridge/pkg/tokenstore"
)

var botTokenCmd = &cobra.Command{
	Use:   "bot-token",
	Short: "Manage the stored Bot API token",
}

var botTokenSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Store the Bot API token",
	Long: `Store the Bot API token used for channel resolution.

Examples:
  # Interactive input
  tgbridge bot-token set

  # Non-interactive
  tgbridge bot-token set 123456:ABC-DEF`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBotTokenSet,
}

var botTokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored Bot API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokens(func(ctx context.Context, tokens *tokenstore.Store) error {
			if !tokens.ClearBotToken(ctx) {
				return fmt.Errorf("clearing bot token failed")
			}
			fmt.Println("Bot token cleared.")
			return nil
		})
	},
}

var botTokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a Bot API token is configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokens(func(ctx context.Context, tokens *tokenstore.Store) error {
			if tokens.IsBotTokenConfigured(ctx) {
				fmt.Println("Bot token: configured")
			} else {
				fmt.Println("Bot token: not configured")
			}
			if _, ok := tokens.GetToken(ctx); ok {
				fmt.Println("Session token: present")
			} else {
				fmt.Println("Session token: absent")
			}
			return nil
		})
	},
}

func init() {
	botTokenCmd.AddCommand(botTokenSetCmd)
	botTokenCmd.AddCommand(botTokenClearCmd)
	botTokenCmd.AddCommand(botTokenStatusCmd)
	rootCmd.AddCommand(botTokenCmd)
}

func withTokens(fn func(ctx context.Context, tokens *tokenstore.Store) error) error {
	var tokens *tokenstore.Store
	return runOnce(10*time.Second, func(ctx context.Context) error {
		return fn(ctx, tokens)
	}, tokenModules(fx.Populate(&tokens))...)
}

func runBotTokenSet(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = strings.TrimSpace(args[0])
	} else {
		fmt.Print("Enter bot token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	return withTokens(func(ctx context.Context, tokens *tokenstore.Store) error {
		if !tokens.SetBotToken(ctx, token) {
			return fmt.Errorf("storing bot token failed")
		}
		fmt.Println("Bot token stored.")
		return nil
	})
}
