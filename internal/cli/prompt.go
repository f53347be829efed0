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

// terminal seams, replaced in tests
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// promptSecret asks for a value without echo when stdin is a terminal and
// reads a plain line otherwise
func promptSecret(in *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)

	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		secret, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(secret), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
