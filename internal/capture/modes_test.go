package capture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModeTableHasSixteenEntries(t *testing.T) {
	require.Len(t, Modes, 16)
	for i, m := range Modes {
		require.Equal(t, i, m.Index)
	}
}

func TestModeByIndexDefault(t *testing.T) {
	m, ok := ModeByIndex(DefaultModeIndex)
	require.True(t, ok)
	require.Equal(t, "720p59.94", m.Name)
	require.Equal(t, 1280, m.Width)
	require.Equal(t, 720, m.Height)
}

func TestModeByIndexOutOfRange(t *testing.T) {
	_, ok := ModeByIndex(-1)
	require.False(t, ok)
	_, ok = ModeByIndex(16)
	require.False(t, ok)
}

func TestModeByNameRoundTrip(t *testing.T) {
	for _, m := range Modes {
		got, ok := ModeByName(m.Name)
		require.True(t, ok)
		require.Equal(t, m, got)
	}
}

func TestModeByNameUnknown(t *testing.T) {
	_, ok := ModeByName("not-a-real-mode")
	require.False(t, ok)
}
