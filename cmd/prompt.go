package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

// promptLine asks for one line of input. On a terminal it uses liner so the
// line can be edited; otherwise it reads from the command's stdin.
func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	if cmd.InOrStdin() == os.Stdin && liner.TerminalSupported() && isTerminal() {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		answer, err := line.Prompt(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(answer), nil
	}

	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && (err != io.EOF || answer == "") {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// confirm returns true only for an explicit yes.
func confirm(cmd *cobra.Command, prompt string) bool {
	answer, err := promptLine(cmd, prompt)
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}
