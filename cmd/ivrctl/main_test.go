package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport/mock"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRecognizeAgainstSimulator(t *testing.T) {
	sim, err := mock.NewSimulator("127.0.0.1:0", mock.AsrBehavior("Super_text", 2), nil)
	require.NoError(t, err)
	defer sim.Close()

	out, err := execute(t, "recognize",
		"--log-level", "error",
		"--gateway", sim.Addr().String(),
		"--local", "127.0.0.1:0",
		"--prompt", "hello.wav",
	)
	require.NoError(t, err, out)

	assert.Equal(t, 2, strings.Count(out, "result: Super_text"))
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "AU/asr(dr=no_name_driver ln=en-US ip=hello.wav")
}

func TestRecognizeFailure(t *testing.T) {
	sim, err := mock.NewSimulator("127.0.0.1:0", mock.FailingBehavior(300), nil)
	require.NoError(t, err)
	defer sim.Close()

	out, err := execute(t, "recognize",
		"--log-level", "error",
		"--gateway", sim.Addr().String(),
		"--local", "127.0.0.1:0",
	)
	require.Error(t, err)
	assert.Contains(t, out, "failed: The IVR request failed with the following error code 300")
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "endpoint_name:")
	assert.Contains(t, out, "request_timeout:")
}

func TestSimulateBehaviorSelection(t *testing.T) {
	asr := message.NewNotificationRequest(1, "ivr/1@mgw", nil, message.NewEvent("AU", "asr", "dr=x ln=en-US"))

	r := (&simulateOptions{text: "x", interim: 1}).behavior()(asr)
	assert.Len(t, r.Notifications, 2)

	r = (&simulateOptions{failRC: 311}).behavior()(asr)
	require.Len(t, r.Notifications, 1)
	assert.Equal(t, "rc=311", r.Notifications[0].Parameters)

	r = (&simulateOptions{reject: 510}).behavior()(asr)
	assert.Equal(t, 510, r.Code)

	r = (&simulateOptions{text: "x", specific: "ivr/9@mgw"}).behavior()(asr)
	assert.Equal(t, "ivr/9@mgw", r.SpecificEndpoint)
}
