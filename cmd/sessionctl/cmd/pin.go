package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aussiebroadwan/authsession/internal/app"
	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/pingate"
	"github.com/spf13/cobra"
)

var pinFlow string

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinSetCmd, pinCheckCmd, pinChangeCmd, pinPromptCmd, pinBiometryCmd)

	pinCheckCmd.Flags().StringVar(&pinFlow, "flow", string(domain.GateAuth), "gate flow (auth or diiaId)")
}

// keypad is anything that takes digits one at a time.
type keypad interface {
	Press(ctx context.Context, digit int) (pingate.Step, error)
}

// enterCode reads one line and presses its digits, returning the last step.
func enterCode(ctx context.Context, term *terminal, pad keypad, prompt string) (pingate.Step, error) {
	line, err := term.readLine(prompt)
	if err != nil {
		return pingate.StepInput, err
	}
	digits, err := parseDigits(line)
	if err != nil {
		return pingate.StepInput, err
	}

	step := pingate.StepInput
	for _, d := range digits {
		step, err = pad.Press(ctx, d)
		if err != nil || step != pingate.StepInput {
			return step, err
		}
	}
	return step, nil
}

// runCreate drives a creation until it finishes or aborts.
func runCreate(ctx context.Context, term *terminal, pad keypad, first string) error {
	prompt := first
	repeating := false
	for {
		step, err := enterCode(ctx, term, pad, prompt)
		switch {
		case step == pingate.StepDone, step == pingate.StepAborted:
			return err
		case errors.Is(err, io.EOF):
			return err
		case errors.Is(err, domain.ErrPincodeMismatch):
			if repeating {
				fmt.Fprintln(term.out, "Pincodes do not match.")
			}
		case err != nil:
			fmt.Fprintln(term.out, err)
		case step == pingate.StepAccepted:
			prompt = "New pincode: "
		case step == pingate.StepRepeat:
			repeating = true
			prompt = "Repeat pincode: "
		}
	}
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage the local pincode",
}

var pinSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create a new pincode",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			term := newTerminal(os.Stdin, os.Stdout)
			if err := runCreate(ctx, term, a.CreateGate(term), "New pincode: "); err != nil {
				return err
			}
			fmt.Println("Pincode stored.")
			return a.Session().MarkPincodeVerified(ctx, time.Now())
		})
	},
}

var pinChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Replace the pincode after entering the current one",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			term := newTerminal(os.Stdin, os.Stdout)
			changer := a.ChangeGate(term, func() {
				fmt.Fprintln(term.out, "Wrong pincode.")
			})
			if err := runCreate(ctx, term, changer, "Current pincode: "); err != nil {
				return err
			}
			fmt.Println("Pincode changed.")
			return a.Session().MarkPincodeVerified(ctx, time.Now())
		})
	},
}

type printDelegate struct {
	out io.Writer
}

func (d printDelegate) Accepted(string) { fmt.Fprintln(d.out, "Pincode accepted.") }
func (d printDelegate) Mismatch(attempt, limit int) {
	fmt.Fprintf(d.out, "Wrong pincode (%d of %d).\n", attempt, limit)
}
func (d printDelegate) Exhausted() { fmt.Fprintln(d.out, "Too many wrong entries.") }
func (d printDelegate) Forgot()    {}

var pinCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Enter the pincode",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			if !a.Session().HasPincode(ctx) {
				return errors.New("no pincode set")
			}

			term := newTerminal(os.Stdin, os.Stdout)
			gate := a.EnterGate(domain.GateFlow(pinFlow), printDelegate{out: term.out}, nil)
			for {
				step, err := enterCode(ctx, term, gate, "Pincode: ")
				switch {
				case step == pingate.StepAccepted:
					return a.Session().MarkPincodeVerified(ctx, time.Now())
				case errors.Is(err, domain.ErrPincodeMismatch), errors.Is(err, pingate.ErrInvalidDigit):
					continue
				case err != nil:
					return err
				}
			}
		})
	},
}

var pinPromptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Report whether the pincode gate is due",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			fmt.Println(a.Session().NeedsPincodePrompt(ctx, time.Now()))
			return nil
		})
	},
}

var pinBiometryCmd = &cobra.Command{
	Use:       "biometry [on|off]",
	Short:     "Enable or disable the biometric shortcut",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return pingate.RequestBiometry(ctx, a.Store().Pincode(), args[0] == "on")
		})
	},
}
