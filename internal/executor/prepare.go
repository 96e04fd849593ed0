package executor

import (
	"errors"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/mattn/go-shellwords"
)

const (
	privilegePrefix = "sudo "
	elevateHelper   = "pkexec"
)

var errEmptyCommand = errors.New("empty command")

// Prepare turns a directive into an argv. Commands starting with sudo are
// rerouted through pkexec so authentication happens in a native dialog and
// output is still captured. Command lines containing shell operators run
// through sh -c.
func Prepare(command string) ([]string, bool, error) {
	trimmed := strings.TrimSpace(command)
	line := trimmed
	privileged := false
	if strings.HasPrefix(trimmed, privilegePrefix) {
		inner := strings.TrimSpace(strings.TrimPrefix(trimmed, privilegePrefix))
		if inner == "" {
			return nil, true, errEmptyCommand
		}
		line = elevateHelper + " bash -c " + shellescape.Quote(inner)
		privileged = true
	}

	parser := shellwords.NewParser()
	argv, err := parser.Parse(line)
	if err != nil {
		return nil, privileged, err
	}
	if parser.Position >= 0 {
		return []string{"sh", "-c", line}, privileged, nil
	}
	if len(argv) == 0 {
		return nil, privileged, errEmptyCommand
	}
	return argv, privileged, nil
}
