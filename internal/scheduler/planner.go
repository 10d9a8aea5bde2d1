package scheduler

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// ScheduleDaily plans count messages over the current stage's time
// anchors. Each message gets its own contact, slot and template, so the
// plan is capped by the contacts available and the slots are spread over
// the anchors for the capped size.
func (s *Scheduler) ScheduleDaily(name string, count int) ([]warmup.ScheduledMessage, error) {
	stage, err := s.registry.CurrentStage(name)
	if err != nil {
		return nil, err
	}
	contacts, err := s.registry.SelectContacts(name, count)
	if err != nil {
		return nil, err
	}
	n := count
	if len(contacts) < n {
		n = len(contacts)
	}

	now := s.registry.Now().In(s.registry.Location())
	var slots []time.Time
	var slotErr error
	s.withRand(func(rng *rand.Rand) {
		slots, slotErr = GenerateTimeSlots(stage.TimeDistribution, n, now, rng)
	})
	if slotErr != nil {
		return nil, fmt.Errorf("%w: %v", warmup.ErrStageNotFound, slotErr)
	}
	if len(slots) < n {
		n = len(slots)
	}
	out := make([]warmup.ScheduledMessage, 0, n)
	for i := 0; i < n; i++ {
		tpl := s.registry.SelectTemplate(name, stage.AllowedMedia)
		msg, err := s.registry.ScheduleMessage(name, contacts[i], tpl.ID, slots[i])
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	logger.Info("daily messages scheduled", "instance", name, "target", count, "scheduled", n, "slots", len(slots))
	return out, nil
}

// ScheduleRequest is one caller-provided message to schedule.
type ScheduleRequest struct {
	Contact     string    `json:"contact"`
	TemplateID  string    `json:"templateId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// SkippedRequest is a request ScheduleExplicit refused, with the reason.
type SkippedRequest struct {
	ScheduleRequest
	Reason string `json:"reason"`
}

// ScheduleOutcome lists what ScheduleExplicit scheduled and skipped.
type ScheduleOutcome struct {
	Scheduled []warmup.ScheduledMessage `json:"messages"`
	Skipped   []SkippedRequest          `json:"skipped,omitempty"`
}

// ScheduleExplicit schedules caller-provided messages. Incomplete entries
// and unknown templates are skipped, and so are entries for today once
// today's quota is already used up.
func (s *Scheduler) ScheduleExplicit(name string, reqs []ScheduleRequest) (ScheduleOutcome, error) {
	limit, err := s.registry.DailyLimit(name)
	if err != nil {
		return ScheduleOutcome{}, err
	}
	today, err := s.registry.TodayMetrics(name)
	if err != nil {
		return ScheduleOutcome{}, err
	}
	loc := s.registry.Location()

	var out ScheduleOutcome
	for _, req := range reqs {
		req.Contact = strings.TrimSpace(req.Contact)
		switch {
		case req.Contact == "" || req.TemplateID == "" || req.ScheduledAt.IsZero():
			out.Skipped = append(out.Skipped, SkippedRequest{req, "contact, templateId and scheduledAt are required"})
			continue
		case !s.knownTemplate(req.TemplateID):
			out.Skipped = append(out.Skipped, SkippedRequest{req, "unknown template"})
			continue
		case req.ScheduledAt.In(loc).Format(warmup.DateLayout) == today.Date && today.MessagesSent >= limit:
			out.Skipped = append(out.Skipped, SkippedRequest{req, "daily limit reached for today"})
			continue
		}
		msg, err := s.registry.ScheduleMessage(name, req.Contact, req.TemplateID, req.ScheduledAt)
		if err != nil {
			return out, err
		}
		out.Scheduled = append(out.Scheduled, msg)
	}
	logger.Info("explicit messages scheduled", "instance", name, "scheduled", len(out.Scheduled), "skipped", len(out.Skipped))
	return out, nil
}

func (s *Scheduler) knownTemplate(id string) bool {
	_, ok := s.registry.Templates().Get(id)
	return ok
}

// Stats counts an instance's scheduled messages.
type Stats struct {
	Total     int  `json:"total"`
	Pending   int  `json:"pending"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Cancelled int  `json:"cancelled"`
	Today     int  `json:"today"`
	Overdue   int  `json:"overdue"`
	Running   bool `json:"running"`
}

// Stats returns counts over the instance's schedule. Today uses the
// configured timezone; overdue means pending and already due.
func (s *Scheduler) Stats(name string) (Stats, error) {
	if _, err := s.registry.Config(name); err != nil {
		return Stats{}, err
	}
	now := s.registry.Now()
	today := s.registry.Today()
	loc := s.registry.Location()

	st := Stats{Running: s.Running(name)}
	for _, m := range s.registry.ScheduledMessages(name) {
		st.Total++
		switch m.Status {
		case warmup.StatusPending:
			st.Pending++
			if m.ScheduledAt.Before(now) {
				st.Overdue++
			}
		case warmup.StatusSent:
			st.Sent++
		case warmup.StatusFailed:
			st.Failed++
		case warmup.StatusCancelled:
			st.Cancelled++
		}
		if m.ScheduledAt.In(loc).Format(warmup.DateLayout) == today {
			st.Today++
		}
	}
	return st, nil
}

// Cancel cancels a pending scheduled message.
func (s *Scheduler) Cancel(name, id string) (warmup.ScheduledMessage, error) {
	msg, err := s.registry.CancelMessage(name, id)
	if err != nil {
		return msg, err
	}
	logger.Info("scheduled message cancelled", "instance", name, "message_id", id)
	return msg, nil
}

// Cleanup removes finished messages scheduled more than olderThan ago.
// Pending messages are always kept.
func (s *Scheduler) Cleanup(name string, olderThan time.Duration) (int, error) {
	n, err := s.registry.PruneScheduled(name, s.registry.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("old scheduled messages cleaned up", "instance", name, "removed", n)
	}
	return n, nil
}
