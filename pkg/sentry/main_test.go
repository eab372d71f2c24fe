package sentry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendWithoutInit(t *testing.T) {
	require.Nil(t, Init("", "test"))
	require.False(t, inited.Load())
	Send("nothing happens", SentryInfoData{"k": "v"}, LevelWarning)
	Flush()
}
