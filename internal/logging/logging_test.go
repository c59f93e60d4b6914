package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	logger, err := New(Options{})
	require.NoError(t, err)
	require.Equal(t, logrus.InfoLevel, logger.GetLevel())
	require.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "JSON", Output: &buf})
	require.NoError(t, err)

	Adapt(logger).Debug("netq batch done", "count", 3, "err", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "netq batch done", entry["msg"])
	require.Equal(t, "debug", entry["level"])
	require.EqualValues(t, 3, entry["count"])
	require.Equal(t, "boom", entry["error"])
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)

	_, err = New(Options{Format: "xml"})
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestAdapterLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	adapter := Adapt(logger)

	adapter.Debug("d")
	adapter.Info("i", "id", 7)
	adapter.Warn("w")
	adapter.Error("e")

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	require.Equal(t, logrus.DebugLevel, entries[0].Level)
	require.Equal(t, logrus.InfoLevel, entries[1].Level)
	require.Equal(t, 7, entries[1].Data["id"])
	require.Equal(t, logrus.WarnLevel, entries[2].Level)
	require.Equal(t, logrus.ErrorLevel, entries[3].Level)
}

func TestFields(t *testing.T) {
	fields := Fields([]any{"a", 1, 2, "two", "dangling"})
	require.Equal(t, logrus.Fields{"a": 1, "2": "two", "!BADKEY": "dangling"}, fields)
}
