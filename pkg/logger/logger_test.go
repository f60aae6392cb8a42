package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	assert.NotNil(t, logger)
	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)

	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestGetLogger_FallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.Formatter = &logrus.JSONFormatter{}

	ctx := WithLogger(context.Background(), logrus.NewEntry(l))
	ctx = WithField(ctx, "conversation_id", 7)
	ctx = WithField(ctx, "request_id", "abc")

	G(ctx).Info("turn finished")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, float64(7), line["conversation_id"])
	assert.Equal(t, "abc", line["request_id"])
	assert.Equal(t, "turn finished", line["msg"])
}

func TestConfigure(t *testing.T) {
	origLevel := L.Logger.GetLevel()
	origFormatter := L.Logger.Formatter
	origOut := L.Logger.Out
	defer func() {
		L.Logger.SetLevel(origLevel)
		L.Logger.Formatter = origFormatter
		L.Logger.SetOutput(origOut)
	}()

	var buf bytes.Buffer
	require.NoError(t, Configure("debug", "json", &buf))

	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
	formatter, ok := L.Logger.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
	assert.Equal(t, "message", formatter.FieldMap[logrus.FieldKeyMsg])

	L.Debug("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "debug", line["logLevel"])
}

func TestConfigure_InvalidLevel(t *testing.T) {
	err := Configure("loud", "fmt", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
