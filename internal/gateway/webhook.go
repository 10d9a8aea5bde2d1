package gateway

import (
	"strings"
	"time"
)

// WebhookMessage is the payload the gateway posts for every message event.
type WebhookMessage struct {
	Instance string `json:"instance"`
	Message  struct {
		Key              MessageKey     `json:"key"`
		Message          MessageContent `json:"message"`
		MessageTimestamp int64          `json:"messageTimestamp"`
		MessageType      string         `json:"messageType"`
	} `json:"message"`
}

// MessageContent holds whichever content field the message type uses.
type MessageContent struct {
	Conversation        string `json:"conversation,omitempty"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage,omitempty"`
	ImageMessage    *MediaContent `json:"imageMessage,omitempty"`
	VideoMessage    *MediaContent `json:"videoMessage,omitempty"`
	AudioMessage    *MediaContent `json:"audioMessage,omitempty"`
	DocumentMessage *MediaContent `json:"documentMessage,omitempty"`
}

// MediaContent is the common shape of media message content.
type MediaContent struct {
	Caption  string `json:"caption,omitempty"`
	URL      string `json:"url"`
	FileName string `json:"fileName,omitempty"`
}

// JID server suffixes of chats that are not one-to-one.
const (
	groupServer     = "@g.us"
	broadcastServer = "@broadcast"
	newsletterSrv   = "@newsletter"
)

// Inbound reports whether the event is a direct reply from a contact
// rather than an echo of our own send. Group, broadcast and channel
// messages are never replies.
func (m WebhookMessage) Inbound() bool {
	jid := m.Message.Key.RemoteJID
	if m.Instance == "" || jid == "" || m.Message.Key.FromMe {
		return false
	}
	for _, server := range []string{groupServer, broadcastServer, newsletterSrv} {
		if strings.HasSuffix(jid, server) {
			return false
		}
	}
	return true
}

// Sender is the remote number without its JID server or device suffix.
func (m WebhookMessage) Sender() string {
	return NumberFromJID(m.Message.Key.RemoteJID)
}

// NumberFromJID strips the "@server" and ":device" parts of a JID.
func NumberFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return strings.TrimSpace(jid)
}

// Text extracts the visible text of the message, if any.
func (m WebhookMessage) Text() string {
	c := m.Message.Message
	switch {
	case c.Conversation != "":
		return c.Conversation
	case c.ExtendedTextMessage != nil:
		return c.ExtendedTextMessage.Text
	case c.ImageMessage != nil:
		return c.ImageMessage.Caption
	case c.VideoMessage != nil:
		return c.VideoMessage.Caption
	case c.DocumentMessage != nil:
		return c.DocumentMessage.Caption
	}
	return ""
}

// Timestamp converts the unix-seconds message timestamp.
func (m WebhookMessage) Timestamp() time.Time {
	return time.Unix(m.Message.MessageTimestamp, 0).UTC()
}

// ConnectionUpdate is the payload of a connection status event.
type ConnectionUpdate struct {
	Instance string `json:"instance"`
	Status   string `json:"status"`
	State    string `json:"state,omitempty"`
}
