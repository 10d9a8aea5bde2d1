package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5511988887777", "5511*****7777"},
		{"5511988887777@s.whatsapp.net", "5511*****7777@s.whatsapp.net"},
		{"12345678", "********"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactPhone(tt.in), tt.in)
	}
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestLogRedactsContactFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Info("sent", "contact", "5511988887777", "instance", "sales-1")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "sent", entry["msg"])
	assert.Equal(t, "5511*****7777", entry["contact"])
	assert.Equal(t, "sales-1", entry["instance"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WARN)
	defer func() {
		SetOutput(nil)
		SetLevel(INFO)
	}()

	Info("dropped")
	assert.Zero(t, buf.Len())
	Warn("kept")
	assert.Contains(t, buf.String(), `"kept"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
