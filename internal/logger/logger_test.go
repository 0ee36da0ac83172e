// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{" nonsense ", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Writer: &buf})

	Named("pull").Info().Str("source", "inbox").Msg("cycle done")
	Get().Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, `"component":"pull"`)
	assert.Contains(t, out, `"source":"inbox"`)
	assert.Contains(t, out, `"message":"cycle done"`)
	assert.NotContains(t, out, "hidden")
}

func TestInitConsole(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "console", Writer: &buf})

	Get().Debug().Str("k", "v").Msg("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "k=")
}
