package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New(Config{Level: "debug", Format: format})
		require.NoError(t, err)
		assert.NotNil(t, logger)
		logger.Debug("test message")
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Level: "info", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "yaml"}.Validate())
}
