package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aussiebroadwan/authsession/internal/app"
	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/verification"
	"github.com/spf13/cobra"
)

var (
	verifyFlowCode      string
	verifyPurpose       string
	verifyAuthorization bool
	verifyBankID        string
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(banksCmd)

	flags := verifyCmd.Flags()
	flags.StringVar(&verifyFlowCode, "flow-code", "login", "flow code sent to the methods endpoint")
	flags.StringVar(&verifyPurpose, "purpose", string(domain.PurposeLogin), "purpose of the verification")
	flags.BoolVar(&verifyAuthorization, "authorization", true, "request methods without the session token")
	flags.StringVar(&verifyBankID, "bank", "", "bank id for bankId redirects")
}

// redirectOpener prints the auth url and reads the request id the redirect
// came back with, then completes the verification in-process.
type redirectOpener struct {
	term   *terminal
	app    *app.Application
	target domain.AuthMethod
}

func (o *redirectOpener) Open(ctx context.Context, url string, onClose func()) error {
	fmt.Fprintln(o.term.out, "Open in a browser:", url)
	requestID, err := o.term.readLine("Request id (empty to close): ")
	if err != nil {
		return err
	}
	if requestID == "" {
		onClose()
		return nil
	}

	user := o.app.Session().User()
	user.SetTarget(o.target)
	user.SetRequestID(requestID)
	_, err = o.app.Session().Authorize(ctx, nil)
	return err
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run an identity verification interactively",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			term := newTerminal(os.Stdin, os.Stdout)
			opener := &redirectOpener{term: term, app: a}
			redirect := &verification.RedirectPerformer{
				API:        a.API(),
				Tokens:     a.Session(),
				Opener:     opener,
				BankID:     verifyBankID,
				Interrupts: term,
			}

			performers := map[domain.AuthMethod]verification.Performer{}
			for _, m := range app.RedirectMethods {
				performers[m] = verification.PerformerFunc(func(ctx context.Context, in verification.PerformInput) error {
					opener.target = in.Method
					return redirect.Perform(ctx, in)
				})
			}

			o, err := a.Verification(app.VerificationOptions{
				Selector:   term,
				Interrupts: term,
				Performers: performers,
				OnTransition: func(s verification.State) {
					a.Logger().Debug("verification state", "state", s.String())
				},
			})
			if err != nil {
				return err
			}

			res := o.Run(ctx, domain.VerificationFlow{
				FlowCode:            verifyFlowCode,
				IsAuthorizationFlow: verifyAuthorization,
				Purpose:             domain.Purpose(verifyPurpose),
			}, nil)

			fmt.Println("Outcome:", res.Outcome)
			if res.ProcessID != "" {
				fmt.Println("Process:", res.ProcessID)
			}
			if res.Err != nil {
				if res.Retryable {
					fmt.Println("The attempt can be retried.")
				}
				return res.Err
			}

			if res.Outcome == verification.OutcomeSuccess &&
				domain.Purpose(verifyPurpose) == domain.PurposeLogin &&
				a.Session().State() == domain.NotAuthorized {
				if err := a.Session().AcquireToken(ctx, res.ProcessID); err != nil {
					return err
				}
			}
			fmt.Println("State:", a.Session().State())
			return nil
		})
	},
}

var banksCmd = &cobra.Command{
	Use:   "banks",
	Short: "List the banks offered by bankId",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			banks, err := a.API().Banks(ctx)
			if err != nil {
				return err
			}
			for _, b := range banks {
				status := "available"
				if !b.Workable {
					status = "unavailable"
				}
				fmt.Printf("%-12s %-30s %s\n", b.ID, b.Name, status)
			}
			return nil
		})
	},
}
