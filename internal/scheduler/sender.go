package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ignite/whatsapp-warmup/internal/gateway"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// deliver renders a template and hands it to the gateway. The call runs
// detached from ctx's cancellation so stopping a loop never aborts a send
// already in flight; SendTimeout still bounds it.
func (s *Scheduler) deliver(ctx context.Context, name, contact string, tpl warmup.Template, delay time.Duration) (gateway.SendResult, error) {
	stageID := 0
	if stage, err := s.registry.CurrentStage(name); err == nil {
		stageID = stage.ID
	}
	text, err := s.renderer.Render(tpl, warmup.RenderVars{
		Instance: name,
		Contact:  contact,
		Stage:    stageID,
		At:       s.registry.Now().In(s.registry.Location()),
	})
	if err != nil {
		return gateway.SendResult{}, err
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SendTimeout)
	defer cancel()

	if tpl.Type == warmup.TemplateText {
		return s.gateway.SendText(sendCtx, name, gateway.TextMessage{
			Number: contact,
			Text:   text,
			Delay:  int(delay / time.Millisecond),
		})
	}
	return s.gateway.SendMedia(sendCtx, name, gateway.MediaMessage{
		Number:    contact,
		MediaType: string(tpl.Type),
		Media:     tpl.MediaURL,
		Caption:   text,
	})
}

// ContactResult is the outcome of one message in a direct batch.
type ContactResult struct {
	Contact     string `json:"contact"`
	Success     bool   `json:"success"`
	MessageID   string `json:"messageId,omitempty"`
	TemplateID  string `json:"templateId,omitempty"`
	MessageType string `json:"messageType,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResult summarizes a direct batch send.
type BatchResult struct {
	Requested          int             `json:"requested"`
	MessagesSent       int             `json:"messagesSent"`
	MediaCount         int             `json:"mediaCount"`
	Failed             int             `json:"failed"`
	DailyLimit         int             `json:"dailyLimit"`
	TotalMessagesToday int             `json:"totalMessagesToday"`
	RemainingMessages  int             `json:"remainingMessages"`
	Forced             bool            `json:"forced"`
	Results            []ContactResult `json:"results"`
}

// SendNow sends up to count messages immediately. Without force the batch
// is truncated to the remaining daily quota and a *warmup.DailyLimitError
// is returned when nothing remains. A failed contact is recorded as an
// error and never stops the rest of the batch.
func (s *Scheduler) SendNow(ctx context.Context, name string, count int, force bool) (BatchResult, error) {
	if count <= 0 {
		count = 1
	}
	stage, err := s.registry.CurrentStage(name)
	if err != nil {
		return BatchResult{}, err
	}
	res, err := s.registry.Reserve(name, count, force)
	if err != nil {
		return BatchResult{}, err
	}

	contacts, err := s.registry.SelectContacts(name, res.Granted)
	if err != nil {
		s.registry.ReleaseUnused(name, res.Granted)
		return BatchResult{}, err
	}
	if unused := res.Granted - len(contacts); unused > 0 {
		s.registry.ReleaseUnused(name, unused)
	}

	out := BatchResult{
		Requested:  count,
		DailyLimit: res.Limit,
		Forced:     force,
		Results:    make([]ContactResult, 0, len(contacts)),
	}
	for _, contact := range contacts {
		tpl := s.registry.SelectTemplate(name, stage.AllowedMedia)
		sent, sendErr := s.deliver(ctx, name, contact, tpl, s.typingDelay())

		cr := ContactResult{Contact: contact, TemplateID: tpl.ID, MessageType: string(tpl.Type)}
		if sendErr != nil {
			logger.Warn("direct send failed", "instance", name, "contact", contact, "template", tpl.ID, "error", sendErr)
			if err := s.registry.CompleteSend(name, warmup.MetricsDelta{Errors: 1}); err != nil {
				return out, err
			}
			cr.Error = sendErr.Error()
			out.Failed++
		} else {
			if err := s.registry.CompleteSend(name, warmup.SentDelta(tpl.Type)); err != nil {
				return out, err
			}
			s.registry.Templates().RecordUsage(tpl.ID, s.registry.Now())
			cr.Success = true
			cr.MessageID = sent.MessageID()
			out.MessagesSent++
			if tpl.Type != warmup.TemplateText {
				out.MediaCount++
			}
		}
		out.Results = append(out.Results, cr)
	}

	today, err := s.registry.TodayMetrics(name)
	if err != nil {
		return out, err
	}
	out.TotalMessagesToday = today.MessagesSent
	out.RemainingMessages = res.Limit - today.MessagesSent
	if out.RemainingMessages < 0 {
		out.RemainingMessages = 0
	}
	logger.Info("direct batch sent",
		"instance", name, "requested", count, "sent", out.MessagesSent,
		"failed", out.Failed, "forced", force)
	return out, nil
}

// typingDelay is a random 1-3x SendDelay, so consecutive messages do not
// share an identical rhythm.
func (s *Scheduler) typingDelay() time.Duration {
	var d time.Duration
	s.withRand(func(rng *rand.Rand) {
		d = s.opts.SendDelay + time.Duration(rng.Int63n(int64(2*s.opts.SendDelay)+1))
	})
	return d
}

// templateFor returns the stored template of a scheduled message, or a
// fresh selection when the id is no longer in the catalog.
func (s *Scheduler) templateFor(msg warmup.ScheduledMessage) (warmup.Template, error) {
	if tpl, ok := s.registry.Templates().Get(msg.TemplateID); ok {
		return tpl, nil
	}
	stage, err := s.registry.CurrentStage(msg.InstanceName)
	if err != nil {
		return warmup.Template{}, fmt.Errorf("template %s: %w", msg.TemplateID, err)
	}
	return s.registry.SelectTemplate(msg.InstanceName, stage.AllowedMedia), nil
}
