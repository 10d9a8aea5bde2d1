package warmup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	r := NewRenderer()
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) // Monday

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "Hello! Checking connectivity.", "Hello! Checking connectivity."},
		{"weekday", "How are you doing this {{ weekday }}?", "How are you doing this Monday?"},
		{"all bindings", "{{ instance }}/{{ stage }}/{{ date }}", "sales/2/2024-03-04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(Template{ID: tt.name, Content: tt.content},
				RenderVars{Instance: "sales", Contact: "5511900000001", Stage: 2, At: at})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderParseError(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render(Template{ID: "bad", Content: "{% nosuchtag %}"}, RenderVars{At: time.Now()})
	assert.Error(t, err)
}

func TestDefaultTemplatesRender(t *testing.T) {
	r := NewRenderer()
	for _, tpl := range DefaultTemplates() {
		_, err := r.Render(tpl, RenderVars{Instance: "x", At: time.Now()})
		assert.NoError(t, err, tpl.ID)
	}
}
