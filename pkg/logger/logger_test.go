package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Component: "registry", Level: "debug", Format: "json", Output: &buf})

	log.WithField("module_id", "m1").Info("module ready")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "m1", entry["module_id"])
	assert.Equal(t, "module ready", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_DefaultLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Component: "x", Level: "nonsense", Output: &buf})

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_WithErrorAndNamed(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Component: "monitor", Format: "json", Output: &buf})
	child := log.Named("preload")

	child.WithError(errors.New("boom")).Warn("preload failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "preload", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "preload", child.Component())
}

func TestNewNop_Discards(t *testing.T) {
	log := NewNop()
	// Should not panic or write anywhere.
	log.WithFields(map[string]interface{}{"a": 1}).Error("ignored")
}
