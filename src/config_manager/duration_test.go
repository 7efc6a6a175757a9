package config_manager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationWrittenAsString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cm := &ConfigManager{FilePath: path}

	require.NoError(t, cm.SaveConfig(NewDefaultConfig()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"poll_interval": "3s"`)
	assert.Contains(t, string(data), `"dns_timeout": "500ms"`)
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Duration
	}{
		{"string", `"500ms"`, Duration(500 * time.Millisecond)},
		{"minutes", `"2m"`, Duration(2 * time.Minute)},
		{"seconds as number", `5`, Duration(5 * time.Second)},
		{"fractional seconds", `1.5`, Duration(1500 * time.Millisecond)},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	for _, input := range []string{`"soon"`, `true`, `[1]`} {
		var d Duration
		assert.Error(t, json.Unmarshal([]byte(input), &d), input)
	}
}
