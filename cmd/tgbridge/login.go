package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/login"
	"tgbridge/pkg/state"
	"tgbridge/pkg/tokenstore"
)

var (
	loginIdentity login.Identity
	loginOutput   string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange a Telegram identity for a session token",
	Long: `Log in against the application backend with a Telegram identity and
store the returned session token, as the web client does after sign-in.

Examples:
  tgbridge login --id 123456789 --username alice --first-name Alice`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		var tokens *tokenstore.Store
		return runOnce(10*time.Second, func(ctx context.Context) error {
			if !tokens.ClearToken(ctx) {
				return fmt.Errorf("clearing session token failed")
			}
			fmt.Println("Session token cleared.")
			return nil
		}, tokenModules(fx.Populate(&tokens))...)
	},
}

func init() {
	f := loginCmd.Flags()
	f.StringVar(&loginIdentity.ID, "id", "", "telegram user id (required)")
	f.StringVar(&loginIdentity.Phone, "phone", "", "phone number")
	f.StringVar(&loginIdentity.FirstName, "first-name", "", "first name")
	f.StringVar(&loginIdentity.LastName, "last-name", "", "last name")
	f.StringVar(&loginIdentity.Username, "username", "", "telegram username")
	f.StringVar(&loginIdentity.Nick, "nick", "", "display name")
	f.StringVar(&loginIdentity.ProfilePicture, "picture", "", "profile picture URL")
	f.StringVarP(&loginOutput, "output", "o", "", "output format: json or yaml")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

// tokenModules is the minimal graph for commands that only touch stored
// credentials.
func tokenModules(extra ...fx.Option) []fx.Option {
	return append([]fx.Option{
		fx.Supply(config.Path(configPath)),
		config.Module,
		logger.Module,
		state.Module,
		tokenstore.Module,
	}, extra...)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(loginIdentity.ID) == "" {
		return fmt.Errorf("--id is required")
	}

	var client *login.Client
	return runOnce(time.Minute, func(ctx context.Context) error {
		res := client.LoginWithIdentity(ctx, loginIdentity)
		if err := printValue(loginOutput, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("login failed: %s", res.Error)
		}
		return nil
	}, tokenModules(login.Module, fx.Populate(&client))...)
}
