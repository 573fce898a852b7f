// Package prompt handles the CLI's interactive questions.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Config holds configuration for prompting. In non-interactive mode
// every confirmation is answered yes, matching --yes semantics. In and
// Out default to stdin/stdout; tests inject buffers.
type Config struct {
	NonInteractive bool
	In             io.Reader
	Out            io.Writer
}

func (c Config) in() io.Reader {
	if c.In != nil {
		return c.In
	}
	return os.Stdin
}

func (c Config) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

// WaitForKey waits for user to press Enter
func WaitForKey(prompt string, cfg Config) {
	if cfg.NonInteractive {
		return
	}
	fmt.Fprint(cfg.out(), prompt)
	bufio.NewReader(cfg.in()).ReadBytes('\n')
}

// Confirm asks the user to confirm an action
func Confirm(prompt string, cfg Config) bool {
	if cfg.NonInteractive {
		return true
	}

	fmt.Fprintf(cfg.out(), "%s (y/n): ", prompt)
	reader := bufio.NewReader(cfg.in())
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
