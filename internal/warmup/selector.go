package warmup

import "math/rand"

// SelectTemplate picks a template for the instance's next message.
//
// Non-text templates are dropped unless both allowMedia and the current
// stage's AllowedMedia are set; stages 1-2 only see basic categories.
// Among the rest, a template's weight is 1/(TimesUsed+1). The first catalog
// entry is returned when the instance has no config or nothing survives the
// filters. Selection does not count as usage; see TemplateCatalog.RecordUsage.
func (r *Registry) SelectTemplate(name string, allowMedia bool) Template {
	stageID, ok := r.stageOf(name)
	if !ok {
		return r.templates.First()
	}
	stage, ok := StageByID(stageID)
	if !ok {
		return r.templates.First()
	}

	var candidates []Template
	for _, t := range r.templates.All() {
		if t.Type != TemplateText && !(allowMedia && stage.AllowedMedia) {
			continue
		}
		if isBasicStage(stage.ID) && !t.Category.basic() {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return r.templates.First()
	}

	var picked Template
	r.withRand(func(rng *rand.Rand) {
		picked = pickWeighted(candidates, rng)
	})
	return picked
}

// pickWeighted draws one template with probability proportional to
// 1/(TimesUsed+1).
func pickWeighted(candidates []Template, rng *rand.Rand) Template {
	total := 0.0
	for _, t := range candidates {
		total += templateWeight(t)
	}
	x := rng.Float64() * total
	for _, t := range candidates {
		x -= templateWeight(t)
		if x < 0 {
			return t
		}
	}
	return candidates[len(candidates)-1]
}

func templateWeight(t Template) float64 {
	return 1 / float64(t.TimesUsed+1)
}
