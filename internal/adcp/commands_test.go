package adcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	sent   []string
	failOn string
}

func (f *fakeCommander) SendCommand(cmd string) error {
	if cmd == f.failOn {
		return errors.New("write timeout")
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func TestParseCommandSet(t *testing.T) {
	set := "CWPBN 30\r\n\tCWPBS 0.5\r\n\r\nCEI 00:00:01\n"
	assert.Equal(t, []string{"CWPBN 30", "CWPBS 0.5", "CEI 00:00:01"}, ParseCommandSet(set))
	assert.Empty(t, ParseCommandSet(" \r\n\t\n"))
}

func TestStartPinging(t *testing.T) {
	c := &fakeCommander{}
	require.NoError(t, StartPinging(c, "CWPBN 30\nCWPBS 0.5"))
	assert.Equal(t, []string{"CWPBN 30", "CWPBS 0.5", CmdStartPinging}, c.sent)

	c = &fakeCommander{}
	require.NoError(t, StartPinging(c, ""))
	assert.Equal(t, []string{CmdStartPinging}, c.sent)
}

func TestStartPingingStopsAtFirstFailure(t *testing.T) {
	c := &fakeCommander{failOn: "CWPBS 0.5"}
	err := StartPinging(c, "CWPBN 30\nCWPBS 0.5\nCEI 00:00:01")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "CWPBS 0.5", cmdErr.Command)
	assert.Equal(t, []string{"CWPBN 30"}, c.sent)
	assert.Contains(t, err.Error(), "write timeout")
}

func TestStopPinging(t *testing.T) {
	c := &fakeCommander{}
	require.NoError(t, StopPinging(c))
	assert.Equal(t, []string{CmdStopPinging}, c.sent)

	assert.Error(t, StopPinging(&fakeCommander{failOn: CmdStopPinging}))
}
