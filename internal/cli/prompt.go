package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal. In tests you can
// replace it with a stub to simulate a pipe or a tty.
var isTerminal = term.IsTerminal

// Confirm prints a yes/no prompt to w and reads the answer from
// reader. Only "y" and "yes" (any case) count as yes; everything
// else, including an empty line, is no.
func Confirm(reader *bufio.Reader, prompt string, w io.Writer) (bool, error) {
	if _, err := fmt.Fprint(w, prompt+" [y/N] "); err != nil {
		return false, err
	}
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// confirmOrYes builds the confirmation behavior for a command: with
// --yes the prompt is skipped, and without a terminal on stdin the
// answer is no, so scripts must pass --yes explicitly.
func confirmOrYes(flags *rootFlags, prompt string, w io.Writer) func() bool {
	return func() bool {
		if flags.yes {
			return true
		}
		if !isTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(w, "refusing without --yes: stdin is not a terminal")
			return false
		}
		ok, err := Confirm(bufio.NewReader(os.Stdin), prompt, w)
		if err != nil {
			return false
		}
		return ok
	}
}
