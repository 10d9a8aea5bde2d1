package warmup

import (
	"fmt"
	"sync"
	"time"

	"github.com/osteele/liquid"
)

// RenderVars are the bindings available to template content.
type RenderVars struct {
	Instance string
	Contact  string
	Stage    int
	At       time.Time
}

// Renderer renders template content through the liquid engine. Parsed
// templates are cached by content.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render produces the final message text for a template.
func (r *Renderer) Render(t Template, vars RenderVars) (string, error) {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(t.Content); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(t.Content)
		if err != nil {
			return "", fmt.Errorf("parse template %s: %w", t.ID, err)
		}
		r.cache.Store(t.Content, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(liquid.Bindings{
		"instance": vars.Instance,
		"contact":  vars.Contact,
		"stage":    vars.Stage,
		"weekday":  vars.At.Weekday().String(),
		"date":     vars.At.Format(DateLayout),
	})
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", t.ID, err)
	}
	return out, nil
}
