package adcp

import "strings"

const (
	CmdStartPinging = "START"
	CmdStopPinging  = "STOP"
)

// Commander sends a single command line to the instrument.
type Commander interface {
	SendCommand(string) error
}

// ParseCommandSet splits a newline separated block of commands into single
// commands. Carriage returns and tabs are removed and blank lines dropped.
func ParseCommandSet(set string) []string {
	var out []string
	for _, line := range strings.Split(set, "\n") {
		line = strings.NewReplacer("\r", "", "\t", "").Replace(line)
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// StartPinging sends the configured command set followed by the start
// command. The first failing command aborts the sequence.
func StartPinging(c Commander, commandSet string) error {
	for _, cmd := range append(ParseCommandSet(commandSet), CmdStartPinging) {
		if err := c.SendCommand(cmd); err != nil {
			return &CommandError{Command: cmd, Err: err}
		}
	}
	return nil
}

// StopPinging asks the instrument to stop pinging.
func StopPinging(c Commander) error {
	if err := c.SendCommand(CmdStopPinging); err != nil {
		return &CommandError{Command: CmdStopPinging, Err: err}
	}
	return nil
}

// CommandError records which command failed.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return "failed to send command " + e.Command + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }
