package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newBufferLogger(level logrus.Level) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{})
	return FromLogrus(l), buf
}

func TestLoggerFieldsAndComponent(t *testing.T) {
	logger, buf := newBufferLogger(logrus.DebugLevel)

	logger.WithComponent("endpoint").
		WithFields(String("endpoint", "ivr/1@mgw")).
		Info(context.Background(), "signal started", Uint32("transaction_id", 42), Err(errors.New("boom")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "signal started", entry["msg"])
	assert.Equal(t, "endpoint", entry["component"])
	assert.Equal(t, "ivr/1@mgw", entry["endpoint"])
	assert.Equal(t, float64(42), entry["transaction_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "info", entry["level"])
}

func TestLoggerLevelFilter(t *testing.T) {
	logger, buf := newBufferLogger(logrus.WarnLevel)

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	logger.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFromConfig(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	logger, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestFileOutputUsesRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ivr.log")
	w := outputFor(Config{Output: path, MaxSize: 1})

	rotating, ok := w.(*lumberjack.Logger)
	require.True(t, ok, "файловый вывод должен идти через lumberjack")
	assert.Equal(t, path, rotating.Filename)
	assert.Equal(t, 1, rotating.MaxSize)
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Error(context.Background(), "ignored", Err(errors.New("x")))
	logger.WithComponent("c").WithFields(Int("n", 1)).Info(context.Background(), "ignored")
}
