package warmup

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
)

// Registry owns every instance's Config, DailyMetrics history and
// ScheduledMessage list. Each instance has its own lock; operations on
// different instances never contend beyond the map lookup.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*instanceState

	templates   *TemplateCatalog
	dailyLimits map[int]int

	now func() time.Time
	loc *time.Location

	rngMu sync.Mutex
	rng   *rand.Rand
}

type instanceState struct {
	mu        sync.Mutex
	config    Config
	metrics   []DailyMetrics
	scheduled []ScheduledMessage
	inFlight  int // reserved send slots not yet settled
}

// NewRegistry creates an empty registry. dailyLimits maps stage id to the
// default per-day quota copied into every new Config; stages missing from
// the map use the catalog's MaxDailyMessages.
func NewRegistry(templates *TemplateCatalog, dailyLimits map[int]int) *Registry {
	if templates == nil {
		templates = NewTemplateCatalog(nil)
	}
	limits := make(map[int]int, MaxStage)
	for _, s := range stages {
		limits[s.ID] = s.MaxDailyMessages
		if v, ok := dailyLimits[s.ID]; ok {
			limits[s.ID] = v
		}
	}
	return &Registry{
		instances:   make(map[string]*instanceState),
		templates:   templates,
		dailyLimits: limits,
		now:         time.Now,
		loc:         time.UTC,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetClock replaces the time source. Intended for tests and simulations.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// SetRand replaces the random source used for shuffling and template draws.
func (r *Registry) SetRand(rng *rand.Rand) {
	r.rngMu.Lock()
	r.rng = rng
	r.rngMu.Unlock()
}

// SetLocation sets the timezone that defines calendar days.
func (r *Registry) SetLocation(loc *time.Location) {
	if loc != nil {
		r.loc = loc
	}
}

// Templates exposes the template catalog.
func (r *Registry) Templates() *TemplateCatalog { return r.templates }

// Now returns the registry's current time.
func (r *Registry) Now() time.Time { return r.now() }

// Location returns the timezone used for calendar days.
func (r *Registry) Location() *time.Location { return r.loc }

// Today returns today's date key.
func (r *Registry) Today() string {
	return r.now().In(r.loc).Format(DateLayout)
}

func (r *Registry) withRand(fn func(*rand.Rand)) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	fn(r.rng)
}

func (r *Registry) get(name string) (*instanceState, error) {
	r.mu.RLock()
	st, ok := r.instances[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	return st, nil
}

// lock returns the instance with its lock held. Callers must unlock.
func (r *Registry) lock(name string) (*instanceState, error) {
	st, err := r.get(name)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	return st, nil
}

// CreateConfig starts a warm-up for an instance at stage 1. The first
// InternalContactCount contacts are internal, the rest external. A second
// call for the same instance is rejected with ErrConfigExists so the stage
// can never move backwards.
func (r *Registry) CreateConfig(name string, contacts []string) (Config, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Config{}, fmt.Errorf("instance name is required")
	}
	cleaned := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return Config{}, ErrInvalidContacts
	}

	split := InternalContactCount
	if split > len(cleaned) {
		split = len(cleaned)
	}
	limits := make(map[int]int, len(r.dailyLimits))
	for k, v := range r.dailyLimits {
		limits[k] = v
	}
	cfg := Config{
		InstanceName:     name,
		CurrentStage:     1,
		StartDate:        r.now(),
		Contacts:         cleaned,
		InternalContacts: append([]string(nil), cleaned[:split]...),
		ExternalContacts: append([]string(nil), cleaned[split:]...),
		DailyLimits:      limits,
	}

	r.mu.Lock()
	if _, exists := r.instances[name]; exists {
		r.mu.Unlock()
		return Config{}, fmt.Errorf("%w: %s", ErrConfigExists, name)
	}
	r.instances[name] = &instanceState{config: cfg}
	r.mu.Unlock()

	logger.Info("warmup config created",
		"instance", name,
		"stage", cfg.CurrentStage,
		"contacts", len(cfg.Contacts),
		"internal_contacts", len(cfg.InternalContacts),
		"external_contacts", len(cfg.ExternalContacts))

	return copyConfig(cfg), nil
}

// Config returns a copy of an instance's config.
func (r *Registry) Config(name string) (Config, error) {
	st, err := r.lock(name)
	if err != nil {
		return Config{}, err
	}
	defer st.mu.Unlock()
	return copyConfig(st.config), nil
}

// Instances lists the names of every instance with a config, sorted.
func (r *Registry) Instances() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// CurrentStage returns the catalog entry of the instance's current stage.
func (r *Registry) CurrentStage(name string) (Stage, error) {
	id, ok := r.stageOf(name)
	if !ok {
		return Stage{}, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	stage, ok := StageByID(id)
	if !ok {
		return Stage{}, fmt.Errorf("%w: stage %d of %s", ErrStageNotFound, id, name)
	}
	return stage, nil
}

func (r *Registry) stageOf(name string) (int, bool) {
	st, err := r.lock(name)
	if err != nil {
		return 0, false
	}
	defer st.mu.Unlock()
	return st.config.CurrentStage, true
}

// DailyLimit returns config.DailyLimits[currentStage].
func (r *Registry) DailyLimit(name string) (int, error) {
	st, err := r.lock(name)
	if err != nil {
		return 0, err
	}
	defer st.mu.Unlock()
	return st.config.DailyLimits[st.config.CurrentStage], nil
}

// RecordDelta merges counters into today's metrics record, creating it when
// absent, and recomputes the response rate. Returns the updated record.
func (r *Registry) RecordDelta(name string, d MetricsDelta) (DailyMetrics, error) {
	st, err := r.lock(name)
	if err != nil {
		return DailyMetrics{}, err
	}
	defer st.mu.Unlock()
	today := r.todayLocked(st)
	today.apply(d)
	return *today, nil
}

// RecordReply counts one inbound reply in today's metrics when contact is
// one of the instance's warm-up contacts. Replies from anyone else return
// ErrUnknownContact and change nothing.
func (r *Registry) RecordReply(name, contact string) (DailyMetrics, error) {
	st, err := r.lock(name)
	if err != nil {
		return DailyMetrics{}, err
	}
	defer st.mu.Unlock()
	key := contactKey(contact)
	known := false
	for _, c := range st.config.Contacts {
		if key != "" && contactKey(c) == key {
			known = true
			break
		}
	}
	if !known {
		return DailyMetrics{}, fmt.Errorf("%w: %s", ErrUnknownContact, contact)
	}
	today := r.todayLocked(st)
	today.apply(MetricsDelta{MessagesReceived: 1})
	return *today, nil
}

// contactKey reduces a number or JID to its user part,
// so "+5511...", "5511..." and "5511...@s.whatsapp.net" compare equal.
func contactKey(c string) string {
	c = strings.TrimSpace(c)
	if i := strings.IndexAny(c, "@:"); i >= 0 {
		c = c[:i]
	}
	return strings.TrimPrefix(c, "+")
}

// TodayMetrics returns today's record, or a zero record for today when
// nothing has been recorded yet. It never creates the record.
func (r *Registry) TodayMetrics(name string) (DailyMetrics, error) {
	st, err := r.lock(name)
	if err != nil {
		return DailyMetrics{}, err
	}
	defer st.mu.Unlock()
	date := r.Today()
	for i := len(st.metrics) - 1; i >= 0; i-- {
		if st.metrics[i].Date == date {
			return st.metrics[i], nil
		}
	}
	return DailyMetrics{Date: date, Stage: st.config.CurrentStage}, nil
}

// Metrics returns the instance's history ordered by date. Unknown instances
// yield an empty history.
func (r *Registry) Metrics(name string) []DailyMetrics {
	st, err := r.lock(name)
	if err != nil {
		return nil
	}
	defer st.mu.Unlock()
	return append([]DailyMetrics(nil), st.metrics...)
}

// todayLocked fetches or creates today's record. st.mu must be held.
func (r *Registry) todayLocked(st *instanceState) *DailyMetrics {
	date := r.Today()
	for i := len(st.metrics) - 1; i >= 0; i-- {
		if st.metrics[i].Date == date {
			return &st.metrics[i]
		}
	}
	rec := DailyMetrics{Date: date, Stage: st.config.CurrentStage}
	idx := sort.Search(len(st.metrics), func(i int) bool { return st.metrics[i].Date > date })
	st.metrics = append(st.metrics, DailyMetrics{})
	copy(st.metrics[idx+1:], st.metrics[idx:])
	st.metrics[idx] = rec
	return &st.metrics[idx]
}

// Reservation is a grant of send slots against today's quota.
type Reservation struct {
	Granted   int
	Limit     int
	SentToday int
}

// Reserve claims up to n send slots. Without force, slots are limited to
// limit - sentToday - inFlight and a *DailyLimitError is returned when none
// remain. With force the quota is bypassed and all n are granted. Every
// granted slot must be settled with CompleteSend.
func (r *Registry) Reserve(name string, n int, force bool) (Reservation, error) {
	st, err := r.lock(name)
	if err != nil {
		return Reservation{}, err
	}
	defer st.mu.Unlock()

	limit := st.config.DailyLimits[st.config.CurrentStage]
	sent := 0
	date := r.Today()
	for i := len(st.metrics) - 1; i >= 0; i-- {
		if st.metrics[i].Date == date {
			sent = st.metrics[i].MessagesSent
			break
		}
	}
	res := Reservation{Limit: limit, SentToday: sent}
	if n <= 0 {
		return res, nil
	}

	granted := n
	if !force {
		remaining := limit - sent - st.inFlight
		if remaining <= 0 {
			return res, &DailyLimitError{Instance: name, Limit: limit, SentToday: sent, InFlight: st.inFlight}
		}
		if granted > remaining {
			granted = remaining
		}
	}
	st.inFlight += granted
	res.Granted = granted
	return res, nil
}

// CompleteSend settles one reserved slot and applies its metrics delta in
// the same critical section. A zero delta just releases the slot.
func (r *Registry) CompleteSend(name string, d MetricsDelta) error {
	st, err := r.lock(name)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()
	if st.inFlight > 0 {
		st.inFlight--
	}
	if !d.IsZero() {
		r.todayLocked(st).apply(d)
	}
	return nil
}

// ReleaseUnused returns n reserved slots that will not be attempted.
func (r *Registry) ReleaseUnused(name string, n int) {
	st, err := r.lock(name)
	if err != nil {
		return
	}
	defer st.mu.Unlock()
	st.inFlight -= n
	if st.inFlight < 0 {
		st.inFlight = 0
	}
}

// ScheduleMessage appends a pending message to the instance's schedule.
func (r *Registry) ScheduleMessage(name, contact, templateID string, at time.Time) (ScheduledMessage, error) {
	st, err := r.lock(name)
	if err != nil {
		return ScheduledMessage{}, err
	}
	defer st.mu.Unlock()
	msg := ScheduledMessage{
		ID:           uuid.New().String(),
		InstanceName: name,
		Contact:      contact,
		TemplateID:   templateID,
		ScheduledAt:  at,
		Status:       StatusPending,
		MaxRetries:   DefaultMaxRetries,
	}
	st.scheduled = append(st.scheduled, msg)
	return msg, nil
}

// ScheduledMessages returns a copy of the instance's schedule.
func (r *Registry) ScheduledMessages(name string) []ScheduledMessage {
	st, err := r.lock(name)
	if err != nil {
		return nil
	}
	defer st.mu.Unlock()
	return append([]ScheduledMessage(nil), st.scheduled...)
}

// DueMessages returns pending messages with ScheduledAt <= now, oldest first.
func (r *Registry) DueMessages(name string, now time.Time) []ScheduledMessage {
	st, err := r.lock(name)
	if err != nil {
		return nil
	}
	defer st.mu.Unlock()
	var due []ScheduledMessage
	for _, m := range st.scheduled {
		if m.Status == StatusPending && !m.ScheduledAt.After(now) {
			due = append(due, m)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	return due
}

// pendingLocked finds a pending message. st.mu must be held.
func pendingLocked(st *instanceState, id string) (*ScheduledMessage, error) {
	for i := range st.scheduled {
		if st.scheduled[i].ID != id {
			continue
		}
		if st.scheduled[i].Status != StatusPending {
			return nil, fmt.Errorf("%w: %s is %s", ErrMessageNotPending, id, st.scheduled[i].Status)
		}
		return &st.scheduled[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
}

// MarkSent transitions a pending message to sent.
func (r *Registry) MarkSent(name, id, gatewayMessageID string, at time.Time) (ScheduledMessage, error) {
	st, err := r.lock(name)
	if err != nil {
		return ScheduledMessage{}, err
	}
	defer st.mu.Unlock()
	m, err := pendingLocked(st, id)
	if err != nil {
		return ScheduledMessage{}, err
	}
	m.Status = StatusSent
	m.GatewayMessageID = gatewayMessageID
	m.LastError = ""
	sentAt := at
	m.SentAt = &sentAt
	return *m, nil
}

// MarkRetry records a failed attempt and moves the message to nextAt,
// leaving it pending.
func (r *Registry) MarkRetry(name, id string, nextAt time.Time, cause error) (ScheduledMessage, error) {
	st, err := r.lock(name)
	if err != nil {
		return ScheduledMessage{}, err
	}
	defer st.mu.Unlock()
	m, err := pendingLocked(st, id)
	if err != nil {
		return ScheduledMessage{}, err
	}
	m.RetryCount++
	m.ScheduledAt = nextAt
	if cause != nil {
		m.LastError = cause.Error()
	}
	return *m, nil
}

// MarkFailed records the final failed attempt, marks the message failed and
// adds one error to today's metrics. The pending check makes the error
// increment happen exactly once per message.
func (r *Registry) MarkFailed(name, id string, cause error) (ScheduledMessage, error) {
	st, err := r.lock(name)
	if err != nil {
		return ScheduledMessage{}, err
	}
	defer st.mu.Unlock()
	m, err := pendingLocked(st, id)
	if err != nil {
		return ScheduledMessage{}, err
	}
	m.RetryCount++
	m.Status = StatusFailed
	if cause != nil {
		m.LastError = cause.Error()
	}
	r.todayLocked(st).apply(MetricsDelta{Errors: 1})
	return *m, nil
}

// CancelMessage cancels a pending message.
func (r *Registry) CancelMessage(name, id string) (ScheduledMessage, error) {
	st, err := r.lock(name)
	if err != nil {
		return ScheduledMessage{}, err
	}
	defer st.mu.Unlock()
	m, err := pendingLocked(st, id)
	if err != nil {
		return ScheduledMessage{}, err
	}
	m.Status = StatusCancelled
	return *m, nil
}

// PruneScheduled drops terminal messages scheduled before cutoff. Pending
// messages are always kept. Returns how many were removed.
func (r *Registry) PruneScheduled(name string, cutoff time.Time) (int, error) {
	st, err := r.lock(name)
	if err != nil {
		return 0, err
	}
	defer st.mu.Unlock()
	kept := st.scheduled[:0]
	removed := 0
	for _, m := range st.scheduled {
		if m.Status.Terminal() && m.ScheduledAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	st.scheduled = kept
	return removed, nil
}

// Snapshot returns the full state of one instance.
func (r *Registry) Snapshot(name string) (InstanceSnapshot, error) {
	st, err := r.lock(name)
	if err != nil {
		return InstanceSnapshot{}, err
	}
	defer st.mu.Unlock()
	return InstanceSnapshot{
		Config:    copyConfig(st.config),
		Metrics:   append([]DailyMetrics(nil), st.metrics...),
		Scheduled: append([]ScheduledMessage(nil), st.scheduled...),
	}, nil
}

// Restore loads a snapshot, replacing any in-memory state for that instance.
// Used once at startup before traffic is accepted.
func (r *Registry) Restore(snap InstanceSnapshot) error {
	name := snap.Config.InstanceName
	if name == "" {
		return fmt.Errorf("snapshot has no instance name")
	}
	if _, ok := StageByID(snap.Config.CurrentStage); !ok {
		return fmt.Errorf("%w: stage %d in snapshot of %s", ErrStageNotFound, snap.Config.CurrentStage, name)
	}
	cfg := copyConfig(snap.Config)
	if cfg.DailyLimits == nil {
		cfg.DailyLimits = make(map[int]int, len(r.dailyLimits))
	}
	for k, v := range r.dailyLimits {
		if _, ok := cfg.DailyLimits[k]; !ok {
			cfg.DailyLimits[k] = v
		}
	}
	metrics := append([]DailyMetrics(nil), snap.Metrics...)
	sort.SliceStable(metrics, func(i, j int) bool { return metrics[i].Date < metrics[j].Date })

	r.mu.Lock()
	r.instances[name] = &instanceState{
		config:    cfg,
		metrics:   metrics,
		scheduled: append([]ScheduledMessage(nil), snap.Scheduled...),
	}
	r.mu.Unlock()
	return nil
}

func copyConfig(c Config) Config {
	out := c
	out.Contacts = append([]string(nil), c.Contacts...)
	out.InternalContacts = append([]string(nil), c.InternalContacts...)
	out.ExternalContacts = append([]string(nil), c.ExternalContacts...)
	out.DailyLimits = make(map[int]int, len(c.DailyLimits))
	for k, v := range c.DailyLimits {
		out.DailyLimits[k] = v
	}
	return out
}
