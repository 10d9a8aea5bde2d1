package warmup

import (
	"sync"
	"time"
)

// TemplateType is the content kind of a message template.
type TemplateType string

const (
	TemplateText     TemplateType = "text"
	TemplateImage    TemplateType = "image"
	TemplateVideo    TemplateType = "video"
	TemplateDocument TemplateType = "document"
)

// TemplateCategory groups templates by intent.
type TemplateCategory string

const (
	CategoryGreeting  TemplateCategory = "greeting"
	CategoryFollowup  TemplateCategory = "followup"
	CategoryReminder  TemplateCategory = "reminder"
	CategoryTest      TemplateCategory = "test"
	CategoryPromotion TemplateCategory = "promotion"
)

// basic reports whether early stages may use this category.
func (c TemplateCategory) basic() bool {
	return c == CategoryGreeting || c == CategoryTest || c == CategoryReminder
}

// Template is a reusable message body. Content may contain liquid markup.
type Template struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Type      TemplateType     `json:"type"`
	MediaURL  string           `json:"mediaUrl,omitempty"`
	Category  TemplateCategory `json:"category"`
	TimesUsed int              `json:"timesUsed"`
	LastUsed  *time.Time       `json:"lastUsed,omitempty"`
}

// DefaultTemplates is the built-in catalog.
func DefaultTemplates() []Template {
	return []Template{
		{ID: "greeting_1", Content: "Good morning! This is an initial test of our system.", Type: TemplateText, Category: CategoryGreeting},
		{ID: "greeting_2", Content: "Hello! Checking WhatsApp connectivity.", Type: TemplateText, Category: CategoryGreeting},
		{ID: "test_1", Content: "Hi! Warm-up test message in progress.", Type: TemplateText, Category: CategoryTest},
		{ID: "followup_1", Content: "All good? Confirming the messages are arriving.", Type: TemplateText, Category: CategoryFollowup},
		{ID: "reminder_1", Content: "Reminder: the communication system is up and running.", Type: TemplateText, Category: CategoryReminder},
		{ID: "greeting_varied_1", Content: "Good morning! How are you doing this {{ weekday }}?", Type: TemplateText, Category: CategoryGreeting},
		{ID: "greeting_varied_2", Content: "Hello! Hope you are having a great day.", Type: TemplateText, Category: CategoryGreeting},
		{ID: "followup_varied_1", Content: "Hi! Just checking that everything is fine on your side.", Type: TemplateText, Category: CategoryFollowup},
		{ID: "followup_varied_2", Content: "How are things? Any news to share?", Type: TemplateText, Category: CategoryFollowup},
		{ID: "reminder_varied_1", Content: "Friendly reminder: our channel is active.", Type: TemplateText, Category: CategoryReminder},
		{ID: "promotion_1", Content: "News! We are improving our communication system.", Type: TemplateText, Category: CategoryPromotion},
		{ID: "image_test_1", Content: "System test image", Type: TemplateImage, MediaURL: "https://via.placeholder.com/400x300.png?text=Test+Image", Category: CategoryTest},
		{ID: "document_test_1", Content: "Informational document for testing", Type: TemplateDocument, MediaURL: "https://via.placeholder.com/400x300.png?text=Test+Document", Category: CategoryTest},
	}
}

// TemplateCatalog holds the templates and their usage counters.
type TemplateCatalog struct {
	mu        sync.RWMutex
	templates []Template
}

// NewTemplateCatalog creates a catalog. An empty list loads DefaultTemplates.
func NewTemplateCatalog(templates []Template) *TemplateCatalog {
	if len(templates) == 0 {
		templates = DefaultTemplates()
	}
	cp := make([]Template, len(templates))
	copy(cp, templates)
	return &TemplateCatalog{templates: cp}
}

// All returns a copy of every template in catalog order.
func (c *TemplateCatalog) All() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Get returns a template by id.
func (c *TemplateCatalog) Get(id string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// First returns the first catalog entry, the selector's fallback.
func (c *TemplateCatalog) First() Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.templates[0]
}

// RecordUsage increments a template's usage counter. Returns false for an
// unknown id.
func (c *TemplateCatalog) RecordUsage(id string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.templates {
		if c.templates[i].ID == id {
			c.templates[i].TimesUsed++
			ts := at
			c.templates[i].LastUsed = &ts
			return true
		}
	}
	return false
}
