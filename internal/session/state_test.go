package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateText(t *testing.T) {
	for s, want := range map[State]string{StateIdle: "idle", StateStarting: "starting", StateRunning: "running"} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(b))

		var got State
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	var s State
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(Status{State: StateRunning, SessionID: "abc", Scans: 2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"running"`)

	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.True(t, st.Scanning())
	assert.Equal(t, uint64(2), st.Scans)
}
