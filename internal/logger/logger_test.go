package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevelRejectsUnknown(t *testing.T) {
	err := SetLevel("verbose")
	require.Error(t, err)
}

func TestSetLevelAppliesKnownLevel(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	require.Equal(t, "debug", Level())
	require.NoError(t, SetLevel("info"))
}

func TestUseWriterRedirectsOutput(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	Info("hello", "k", "v")
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), "k=v")
}

func TestWithPeerAddsField(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	l := WithPeer(Logger(), "peer-123")
	l.Info("connected")
	require.Contains(t, buf.String(), "peer_id=peer-123")
}
