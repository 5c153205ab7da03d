package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	return events
}

func TestLoggerWritesJSONLEvents(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Info(CategoryExecutor, "action_executed", "moved file", map[string]any{"type": "move"}))
	require.NoError(t, logger.Error(CategoryAPI, "request_failed", "bad payload", nil))

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	require.Len(t, events, 2)
	assert.Equal(t, CategoryExecutor, events[0].Category)
	assert.Equal(t, "action_executed", events[0].EventType)
	assert.False(t, events[0].Timestamp.IsZero())

	// Errors are duplicated into the error log.
	errorEvents := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	require.Len(t, errorEvents, 1)
	assert.Equal(t, "request_failed", errorEvents[0].EventType)
}

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Debug(CategoryPlanner, "matched", "family matched", nil))
	require.NoError(t, logger.Info(CategoryPlanner, "planned", "plan built", nil))

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	require.Len(t, events, 1)
	assert.Equal(t, "planned", events[0].EventType)

	logger.SetMinLevel(LevelDebug)
	require.NoError(t, logger.Debug(CategoryPlanner, "matched", "family matched", nil))
	assert.Len(t, readEvents(t, filepath.Join(dir, "events.jsonl")), 2)
}
