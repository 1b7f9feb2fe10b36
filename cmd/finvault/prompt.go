package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPIN is replaced in tests
var readPIN = promptPIN

// stdinLines is shared so consecutive prompts on piped input do not lose
// buffered lines.
var stdinLines *bufio.Reader

// promptPIN reads a PIN without echo when stdin is a terminal and falls
// back to a plain line for piped input.
func promptPIN(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pin, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read PIN: %w", err)
		}
		return string(pin), nil
	}
	return readLine(cmd.InOrStdin())
}

// readLine reads a single line, trimming the trailing newline
func readLine(r io.Reader) (string, error) {
	if stdinLines == nil {
		stdinLines = bufio.NewReader(r)
	}
	line, err := stdinLines.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	value := strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(value, "\r"), nil
}

// readNewPIN prompts twice and checks both entries match.
func readNewPIN(cmd *cobra.Command, prompt string) (string, error) {
	pin1, err := readPIN(cmd, prompt)
	if err != nil {
		return "", err
	}
	pin2, err := readPIN(cmd, "Confirm PIN: ")
	if err != nil {
		return "", err
	}
	if pin1 != pin2 {
		return "", fmt.Errorf("PINs do not match")
	}
	return pin1, nil
}

// confirm asks a yes/no question; anything but y/Y is no.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	answer, err := readLine(cmd.InOrStdin())
	if err != nil {
		return false
	}
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}
