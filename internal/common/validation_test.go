package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorCollectsErrors(t *testing.T) {
	v := NewValidator().
		Field("name", "", Required).
		Field("kind", "tarot", OneOf("pdf", "png")).
		Field("id", "not-a-uuid", UUID)

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 3)

	err := v.Error()
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "must be one of")
}

func TestValidatorPasses(t *testing.T) {
	v := NewValidator().
		Field("name", "a.pdf", Required, MaxLength(255)).
		Field("kind", "pdf", OneOf("pdf", "png"))

	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Error())
}

func TestStageErrorClassification(t *testing.T) {
	transient := NewTransientStageError("ocr", "engine busy", nil)
	terminal := NewTerminalStageError("llm", "bad schema", nil)

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTerminal(transient))
	assert.True(t, IsTerminal(terminal))
	assert.False(t, IsTransient(terminal))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "postgres"
	cfg.Blob.Type = "local"
	require.Error(t, cfg.Validate())

	cfg.Database.DSN = "postgres://localhost/creditocr"
	cfg.Server.Addr = ":8080"
	require.NoError(t, cfg.Validate())

	cfg.Blob.Type = "minio"
	require.Error(t, cfg.Validate())
	cfg.Blob.Endpoint = "localhost:9000"
	require.NoError(t, cfg.Validate())
}
