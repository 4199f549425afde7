package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewBuildsProductionLogger(t *testing.T) {
	log, err := New("info", false)
	require.NoError(t, err)
	require.NotNil(t, log)
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewBuildsDevelopmentLogger(t *testing.T) {
	log, err := New("debug", true)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New("not-a-level", false)
	require.Error(t, err)
}
