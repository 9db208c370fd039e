package ivr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport"
)

const (
	asrResultText    = "Super_text"
	asrResultTextHex = "53757065725f74657874"
	hints            = "hint 1, hint 2"
)

func testSignal(t *testing.T) *AsrSignal {
	t.Helper()
	sig, err := NewAsrSignal(AsrSignalConfig{
		Driver:         "no_name_driver",
		Language:       "en-US",
		Prompts:        []string{"hello.wav"},
		EndInputKey:    "#",
		MaxDuration:    time.Second,
		WaitingTime:    time.Second,
		PostSpeechTime: time.Second,
		Hints:          hints,
	})
	require.NoError(t, err)
	return sig
}

func TestEncodeAsrSignal(t *testing.T) {
	sig := testSignal(t)

	assert.Equal(t,
		"dr=no_name_driver ln=en-US ip=hello.wav eik=# mt=10 wt=10 pst=10 hw=68696e7420312c2068696e742032",
		EncodeAsrSignal(sig))
	assert.Equal(t,
		"AU/asr(dr=no_name_driver ln=en-US ip=hello.wav eik=# mt=10 wt=10 pst=10 hw=68696e7420312c2068696e742032)",
		AsrSignalEvent(sig).String())
}

func TestEncodeAsrSignal_OptionalFields(t *testing.T) {
	sig, err := NewAsrSignal(AsrSignalConfig{
		Driver:      "drv",
		Language:    "ru-RU",
		Prompts:     []string{"http://media/a.wav", "file://b.wav"},
		MaxDuration: 250 * time.Millisecond,
	})
	require.NoError(t, err)

	// eik и hw опускаются, порядок подсказок сохраняется
	assert.Equal(t, "dr=drv ln=ru-RU ip=http://media/a.wav,file://b.wav mt=2 wt=0 pst=0", EncodeAsrSignal(sig))
}

func TestEncodeStopSignal(t *testing.T) {
	assert.Equal(t, "AU/es(sg=asr)", EncodeStopSignal(SignalAsr))
}

func TestNewAsrSignal_Validation(t *testing.T) {
	base := AsrSignalConfig{Driver: "drv", Language: "en-US"}

	tests := []struct {
		name   string
		modify func(*AsrSignalConfig)
	}{
		{"empty driver", func(c *AsrSignalConfig) { c.Driver = "" }},
		{"driver with space", func(c *AsrSignalConfig) { c.Driver = "my driver" }},
		{"language with parenthesis", func(c *AsrSignalConfig) { c.Language = "en(US)" }},
		{"long end input key", func(c *AsrSignalConfig) { c.EndInputKey = "##" }},
		{"invalid end input key", func(c *AsrSignalConfig) { c.EndInputKey = "x" }},
		{"negative timer", func(c *AsrSignalConfig) { c.WaitingTime = -time.Second }},
		{"prompt with comma", func(c *AsrSignalConfig) { c.Prompts = []string{"a.wav,b.wav"} }},
		{"empty prompt", func(c *AsrSignalConfig) { c.Prompts = []string{""} }},
		{"malformed prompt", func(c *AsrSignalConfig) { c.Prompts = []string{"http://[::1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			_, err := NewAsrSignal(cfg)
			assert.ErrorIs(t, err, ErrInvalidSignal)
		})
	}
}

func TestAsrSignal_PromptsAreCopied(t *testing.T) {
	prompts := []string{"hello.wav"}
	sig, err := NewAsrSignal(AsrSignalConfig{Driver: "drv", Language: "en-US", Prompts: prompts})
	require.NoError(t, err)

	prompts[0] = "changed.wav"
	got := sig.Prompts()
	got[0].Path = "mutated.wav"

	assert.Equal(t, "hello.wav", sig.Prompts()[0].String())
}

func TestHexRoundTrip(t *testing.T) {
	for _, s := range []string{"", "Super_text", "привет мир", "日本語", "a b\tc"} {
		encoded := EncodeHex(s)
		decoded, err := DecodeHex(encoded)
		require.NoError(t, err, s)
		assert.Equal(t, s, decoded)
	}

	assert.Equal(t, asrResultTextHex, EncodeHex(asrResultText))

	_, err := DecodeHex("abc")
	assert.Error(t, err, "нечетная длина")
	_, err = DecodeHex("zz")
	assert.Error(t, err)
	_, err = DecodeHex("ff")
	assert.Error(t, err, "не UTF-8")
}

func notifyEvent(params string) transport.NotifyEvent {
	return transport.NotifyEvent{TransactionID: 1, Package: "AU", EventCode: "oc", Parameters: params}
}

func TestDecodeNotification(t *testing.T) {
	t.Run("final", func(t *testing.T) {
		o := DecodeNotification(notifyEvent("rc=100"))
		assert.Equal(t, FinalResult{Code: 100}, o)
		assert.True(t, IsFinal(o))
	})

	t.Run("interim", func(t *testing.T) {
		o := DecodeNotification(notifyEvent("rc=101 asrr=" + asrResultTextHex))
		assert.Equal(t, InterimResult{Code: 101, Text: asrResultText}, o)
		assert.False(t, IsFinal(o))
	})

	t.Run("empty interim", func(t *testing.T) {
		o := DecodeNotification(notifyEvent("rc=101 asrr="))
		assert.Equal(t, InterimResult{Code: 101, Text: ""}, o)
		assert.False(t, IsFinal(o))
	})

	t.Run("parameter order", func(t *testing.T) {
		o := DecodeNotification(notifyEvent("asrr=" + asrResultTextHex + " rc=101"))
		assert.Equal(t, InterimResult{Code: 101, Text: asrResultText}, o)
	})

	t.Run("recognition error", func(t *testing.T) {
		o := DecodeNotification(notifyEvent("rc=300"))
		f, ok := o.(Failure)
		require.True(t, ok)
		assert.Equal(t, 300, f.ReturnCode())
		assert.Equal(t, "The IVR request failed with the following error code 300", f.Cause.Error())
		assert.ErrorIs(t, f.Cause, ErrRecognitionFailed)
		assert.True(t, IsFinal(o))
	})

	malformed := []string{
		"",
		"rc",
		"asrr=41",
		"rc=abc",
		"rc=101",
		"rc=101 asrr=4",
		"rc=101 asrr=zz",
	}
	for _, params := range malformed {
		t.Run("malformed "+params, func(t *testing.T) {
			var o Outcome
			require.NotPanics(t, func() { o = DecodeNotification(notifyEvent(params)) })
			f, ok := o.(Failure)
			require.True(t, ok, "ожидали Failure, получили %T", o)
			assert.ErrorIs(t, f.Cause, ErrDecode)
		})
	}
}

func TestDecodeAcknowledgment(t *testing.T) {
	resp := newResponse(200, 5, "mobicents/ivr/3@mgw")
	assert.Equal(t, Acknowledgment{Code: 200, SpecificEndpoint: "mobicents/ivr/3@mgw"}, DecodeAcknowledgment(resp, nil))

	o := DecodeAcknowledgment(newResponse(510, 5, ""), nil)
	f, ok := o.(Failure)
	require.True(t, ok)
	assert.Equal(t, 510, f.Code)
	assert.ErrorIs(t, f.Cause, ErrAdmissionRejected)
	code, ok := ReturnCodeOf(f.Cause)
	assert.True(t, ok)
	assert.Equal(t, 510, code)

	o = DecodeAcknowledgment(nil, errors.New("boom"))
	f, ok = o.(Failure)
	require.True(t, ok)
	assert.ErrorIs(t, f.Cause, ErrTransport)
	_, ok = ReturnCodeOf(f.Cause)
	assert.False(t, ok)
}

func newResponse(code int, id uint32, specific string) *message.Response {
	resp := message.NewResponse(code, id, "")
	if specific != "" {
		resp.Params().Set(message.ParamSpecificEndpointID, specific)
	}
	return resp
}
