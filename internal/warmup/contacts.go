package warmup

import "math/rand"

// SelectContacts returns up to count contacts for the next batch.
//
// Stages 1-2 only reach internal contacts. From stage 3 the first
// MaxExternalContacts external contacts join the pool. The pool is shuffled
// before truncation so sends never follow the submitted order.
func (r *Registry) SelectContacts(name string, count int) ([]string, error) {
	st, err := r.lock(name)
	if err != nil {
		return nil, err
	}
	stageID := st.config.CurrentStage
	pool := append([]string(nil), st.config.InternalContacts...)
	external := st.config.ExternalContacts
	st.mu.Unlock()

	stage, ok := StageByID(stageID)
	if !ok {
		return nil, ErrStageNotFound
	}
	if !isBasicStage(stage.ID) {
		n := stage.MaxExternalContacts
		if n > len(external) {
			n = len(external)
		}
		pool = append(pool, external[:n]...)
	}

	if count <= 0 {
		return []string{}, nil
	}
	r.withRand(func(rng *rand.Rand) {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	})
	if count < len(pool) {
		pool = pool[:count]
	}
	return pool, nil
}
