package eventlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSynchronousWithZeroBuffer(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf), 0)

	l.Event("task_completed", "t-1", map[string]any{"cost": 2.5})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "task_completed", decoded["event"])
	assert.Equal(t, "t-1", decoded["obj_id"])
	assert.Equal(t, 2.5, decoded["cost"])
}

func TestEventAsyncIsFlushedByClose(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf), 16)

	for i := 0; i < 50; i++ {
		l.Event("worker_steal", "w-0", nil)
	}
	l.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 50)
}

func TestNopDiscardsEverything(t *testing.T) {
	l := Nop()
	l.Event("group_canceled", "g-9", map[string]any{"n": 3})
	l.Close()
}
