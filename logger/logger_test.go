package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Log.Infof("room %s", "ABC123")
	})
}

func TestInit(t *testing.T) {
	require.NoError(t, Init("debug", true))
	assert.NotNil(t, Log)

	assert.Error(t, Init("loud", false))
}
