package utils

import (
	"bytes"
	"os/exec"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

// TestColorAssignment tests that each color assignment is different and that it "wraps"
func TestColorAssignment(t *testing.T) {
	maxlen := len(supportedColors)
	c := NewColorPicker()
	// iterate 3 times to make sure that it "wraps" again to the beginning
	// of the supportedColors slice
	for i := 0; i < 3*maxlen; i++ {
		got := c.NextColor()
		require.True(t, got.Equals(color.New(supportedColors[i%maxlen])), "color %d", i)
	}
}

// syncedBuffer writes to a channel after the Write operation
// so that we are notified in testing when the value arrived
type syncedBuffer struct {
	bytes.Buffer
	sync chan struct{}
}

func (s *syncedBuffer) Write(b []byte) (int, error) {
	defer func() {
		s.sync <- struct{}{}
	}()
	return s.Buffer.Write(b)
}

func TestColorAndPrepend(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	fakeCmd := exec.Command("echo", "test")
	ro, err := fakeCmd.StdoutPipe()
	require.NoError(t, err)
	re, err := fakeCmd.StderrPipe()
	require.NoError(t, err)

	bufout := &syncedBuffer{sync: make(chan struct{})}
	// nothing should be written to stderr
	var buferr bytes.Buffer

	c := NewColorPicker().NextColor()
	c.EnableColor()
	ColorAndPrepend(ro, bufout, "alice", c)
	ColorAndPrepend(re, &buferr, "alice", c)
	require.NoError(t, fakeCmd.Start())

	<-bufout.sync
	res := bufout.String()
	require.True(t, strings.Contains(res, "[alice] test"), res)
	require.Equal(t, c.Sprintf("[alice] test")+"\n", res)

	// Wait only after reading from the pipes.
	// See https://pkg.go.dev/os/exec#Cmd.StdoutPipe
	require.NoError(t, fakeCmd.Wait())
	require.Zero(t, buferr.Len())
}
