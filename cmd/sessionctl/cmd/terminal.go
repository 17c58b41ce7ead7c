package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

// terminal resolves interrupts and method choices on stdin/stdout.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

func (t *terminal) readLine(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Resolve prints the template and asks for one of its actions. An empty
// answer picks the main action.
func (t *terminal) Resolve(ctx context.Context, tpl domain.Template) (domain.Action, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fmt.Fprintln(t.out, tpl.Data.Title)
	if tpl.Data.Description != "" {
		fmt.Fprintln(t.out, tpl.Data.Description)
	}
	actions := tpl.Actions()
	if len(actions) == 0 {
		return tpl.MainAction(), nil
	}
	for i, a := range actions {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, a)
	}

	answer, err := t.readLine("> ")
	if err != nil {
		return "", err
	}
	if answer == "" {
		return tpl.MainAction(), nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(actions) {
		if tpl.IsClosable {
			return domain.ActionClose, nil
		}
		return tpl.MainAction(), nil
	}
	return actions[n-1], nil
}

// Select lists methods and reads a choice. An empty answer backs out.
func (t *terminal) Select(ctx context.Context, title string, methods []domain.AuthMethod) (domain.AuthMethod, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	if title != "" {
		fmt.Fprintln(t.out, title)
	}
	for i, m := range methods {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, m)
	}

	answer, err := t.readLine("> ")
	if err != nil {
		return "", false, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(methods) {
		return "", false, nil
	}
	return methods[n-1], true, nil
}

// parseDigits turns "1234" into its digits.
func parseDigits(s string) ([]int, error) {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%q is not a digit", r)
		}
		digits = append(digits, int(r-'0'))
	}
	return digits, nil
}
