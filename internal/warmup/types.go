package warmup

import "time"

// DateLayout is the calendar-date key used for daily metrics.
const DateLayout = "2006-01-02"

// InternalContactCount is how many of the submitted contacts are treated as
// internal (team-owned) numbers.
const InternalContactCount = 5

// DefaultMaxRetries is the retry budget of every scheduled message.
const DefaultMaxRetries = 3

// Config is the warm-up state of one instance.
type Config struct {
	InstanceName     string      `json:"instanceName"`
	CurrentStage     int         `json:"currentStage"`
	StartDate        time.Time   `json:"startDate"`
	Contacts         []string    `json:"contacts"`
	InternalContacts []string    `json:"internalContacts"`
	ExternalContacts []string    `json:"externalContacts"`
	DailyLimits      map[int]int `json:"dailyLimits"`
}

// DailyMetrics aggregates one calendar day of activity for an instance.
type DailyMetrics struct {
	Date             string  `json:"date"`
	Stage            int     `json:"stage"`
	MessagesSent     int     `json:"messagesSent"`
	MessagesReceived int     `json:"messagesReceived"`
	ResponseRate     float64 `json:"responseRate"`
	MediaCount       int     `json:"mediaCount"`
	UniqueContacts   int     `json:"uniqueContacts"`
	Errors           int     `json:"errors"`
}

// MetricsDelta is an additive update to today's DailyMetrics.
type MetricsDelta struct {
	MessagesSent     int `json:"messagesSent,omitempty"`
	MessagesReceived int `json:"messagesReceived,omitempty"`
	MediaCount       int `json:"mediaCount,omitempty"`
	UniqueContacts   int `json:"uniqueContacts,omitempty"`
	Errors           int `json:"errors,omitempty"`
}

// IsZero reports whether the delta changes nothing.
func (d MetricsDelta) IsZero() bool {
	return d == MetricsDelta{}
}

// SentDelta is the delta recorded for one successful send.
func SentDelta(t TemplateType) MetricsDelta {
	d := MetricsDelta{MessagesSent: 1, UniqueContacts: 1}
	if t != TemplateText {
		d.MediaCount = 1
	}
	return d
}

func (m *DailyMetrics) apply(d MetricsDelta) {
	m.MessagesSent += d.MessagesSent
	m.MessagesReceived += d.MessagesReceived
	m.MediaCount += d.MediaCount
	m.UniqueContacts += d.UniqueContacts
	m.Errors += d.Errors
	if m.MessagesSent > 0 {
		m.ResponseRate = float64(m.MessagesReceived) / float64(m.MessagesSent)
	} else {
		m.ResponseRate = 0
	}
}

// MessageStatus is the lifecycle state of a ScheduledMessage.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusFailed    MessageStatus = "failed"
	StatusCancelled MessageStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s MessageStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// ScheduledMessage is a future send created by the scheduler.
type ScheduledMessage struct {
	ID               string        `json:"id"`
	InstanceName     string        `json:"instanceName"`
	Contact          string        `json:"contact"`
	TemplateID       string        `json:"templateId"`
	ScheduledAt      time.Time     `json:"scheduledAt"`
	Status           MessageStatus `json:"status"`
	RetryCount       int           `json:"retryCount"`
	MaxRetries       int           `json:"maxRetries"`
	LastError        string        `json:"lastError,omitempty"`
	SentAt           *time.Time    `json:"sentAt,omitempty"`
	GatewayMessageID string        `json:"gatewayMessageId,omitempty"`
}

// InstanceSnapshot is the complete keyed-by-instance state, used by the
// snapshot stores.
type InstanceSnapshot struct {
	Config    Config             `json:"config"`
	Metrics   []DailyMetrics     `json:"metrics"`
	Scheduled []ScheduledMessage `json:"scheduled"`
}
