package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// runConsole is the operator loop: it reads commands from in until
// "quit", EOF, or a read error. "status" prints the snapshot produced by
// the status callback; unknown commands print a short usage line.
func runConsole(in io.Reader, out io.Writer, status func() string) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "quit", "exit":
			return
		case "status":
			fmt.Fprintln(out, status())
		default:
			fmt.Fprintln(out, "commands: status | quit")
		}
	}
}
