// Package ui holds the interactive terminal surface. All blocking console
// reads go through the Prompter interface so the lifecycle flow can be
// driven deterministically in tests.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrTooManyAttempts is returned when a bounded prompt keeps receiving
// unusable input.
var ErrTooManyAttempts = errors.New("too many invalid responses")

const maxSelectAttempts = 3

// Prompter abstracts interactive input.
type Prompter interface {
	// Input reads one line of visible text.
	Input(label string) (string, error)
	// Secret reads one line without echoing it.
	Secret(label string) (string, error)
	// Confirm asks a y/n question.
	Confirm(label string) (bool, error)
	// Select presents numbered options and returns the chosen index.
	Select(label string, options []string) (int, error)
}

// TerminalPrompter reads from the attached terminal. Secrets use the
// bubbletea masked input when stdin is a TTY; piped input is read plainly
// since nothing echoes it back.
type TerminalPrompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

func (p *TerminalPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompter) Input(label string) (string, error) {
	if p.interactive {
		return GetInput(label, "", false)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	return p.readLine()
}

func (p *TerminalPrompter) Secret(label string) (string, error) {
	if p.interactive {
		return GetInput(label, "", true)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	return p.readLine()
}

func (p *TerminalPrompter) Confirm(label string) (bool, error) {
	fmt.Fprintf(p.out, "%s (y/n): ", label)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(line)
	return answer == "y" || answer == "yes", nil
}

func (p *TerminalPrompter) Select(label string, options []string) (int, error) {
	fmt.Fprintln(p.out, titleStyle.Render(label))
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, opt)
	}

	for attempt := 0; attempt < maxSelectAttempts; attempt++ {
		fmt.Fprintf(p.out, "Choose option (1-%d): ", len(options))
		line, err := p.readLine()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintln(p.out, "Invalid selection.")
	}
	return 0, ErrTooManyAttempts
}
