package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	entry := New().WithComponent("test")
	assert.Equal(t, "test", entry.Entry.Data["component"])

	nested := entry.WithField("exchange", "EdgeX").WithError(errors.New("boom"))
	assert.Equal(t, "test", nested.Entry.Data["component"])
	assert.Equal(t, "EdgeX", nested.Entry.Data["exchange"])
	assert.NotNil(t, nested.Entry.Data[logrus.ErrorKey])
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "text debug", level: "DEBUG", format: "text"},
		{name: "invalid level", level: "loud", format: "json", wantErr: true},
		{name: "invalid format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Configure(tt.level, tt.format, "stdout", 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigureFileOutput(t *testing.T) {
	log := New()
	require.NoError(t, log.Configure("info", "json", filepath.Join(t.TempDir(), "app.log"), 0))
	require.NoError(t, log.Configure("info", "json", filepath.Join(t.TempDir(), "rotated.log"), 7))
}

func TestJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	log := New()
	log.SetOutput(&buf)

	log.WithComponent("server").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "timestamp")
	assert.Equal(t, "server", line["component"])
}
