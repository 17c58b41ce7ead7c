package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/authsession/internal/app"
	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/spf13/cobra"
)

var (
	loginProcessID string

	authorizeTarget    string
	authorizeRequestID string
	authorizeProcessID string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(serviceLoginCmd)
	rootCmd.AddCommand(authorizeCmd)

	loginCmd.Flags().StringVar(&loginProcessID, "process-id", "", "exchange a verified process for a token")

	authorizeCmd.Flags().StringVar(&authorizeTarget, "target", "", "method the redirect came back from")
	authorizeCmd.Flags().StringVar(&authorizeRequestID, "request-id", "", "request id returned by the redirect")
	authorizeCmd.Flags().StringVar(&authorizeProcessID, "process-id", "", "process id of the verification")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			s := a.Session()
			fmt.Println("State:", s.State())
			fmt.Println("Device:", a.DeviceID())
			if tok := s.Token(); tok != "" {
				fmt.Println("Token:", cryptox.FingerprintToken(tok))
			}
			fmt.Println("Pincode set:", s.HasPincode(ctx))
			fmt.Println("Pincode prompt due:", s.NeedsPincodePrompt(ctx, time.Now()))

			tickets, err := a.Store().LogoutTickets().ListTickets(ctx)
			if err != nil {
				return err
			}
			for _, t := range tickets {
				fmt.Printf("Pending logout: %s %s (since %s)\n",
					t.Kind, cryptox.FingerprintToken(t.Token), t.CreatedAt.Format(time.RFC3339))
			}
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and invalidate its token",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.Session().Logout(ctx)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the session token",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			if err := a.Session().Refresh(ctx); err != nil {
				return err
			}
			fmt.Println("State:", a.Session().State())
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Start a user session from a token or a verified process",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			switch {
			case len(args) == 1:
				return a.Session().LoginWithToken(ctx, args[0])
			case loginProcessID != "":
				return a.Session().AcquireToken(ctx, loginProcessID)
			default:
				return fmt.Errorf("either a token or --process-id is required")
			}
		})
	},
}

var serviceLoginCmd = &cobra.Command{
	Use:   "service-login [offer-id]",
	Short: "Start a merchant initiated service session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.Session().ServiceLogin(ctx, args[0])
		})
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize [key=value...]",
	Short: "Complete a verification after the external redirect",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			target, err := domain.ParseAuthMethod(authorizeTarget)
			if err != nil {
				return err
			}
			user := a.Session().User()
			user.SetTarget(target)
			user.SetRequestID(authorizeRequestID)
			if authorizeProcessID != "" {
				user.SetProcessID(authorizeProcessID)
			}

			action, err := a.Session().Authorize(ctx, parseParams(args))
			if err != nil {
				return err
			}
			fmt.Println("Action:", action)
			return nil
		})
	},
}

func parseParams(args []string) map[string]string {
	params := map[string]string{}
	for _, arg := range args {
		if k, v, ok := strings.Cut(arg, "="); ok && k != "" {
			params[k] = v
		}
	}
	return params
}
