package gateway

import (
	"fmt"
	"strings"
)

// Connection states reported by the Evolution API.
const (
	StatusOpen       = "open"
	StatusConnecting = "connecting"
	StatusClose      = "close"
	ConnectedState   = "CONNECTED"
)

// InstanceState is the gateway's view of one WhatsApp instance.
type InstanceState struct {
	Instance        string `json:"instance"`
	Status          string `json:"status"`
	ConnectionState string `json:"connectionState"`
	Owner           string `json:"owner,omitempty"`
}

// Connected reports whether the instance can send.
func (s InstanceState) Connected() bool {
	return s.Status == StatusOpen && s.ConnectionState == ConnectedState
}

// TextMessage is the body of a sendText call. Delay is the typing delay
// the gateway simulates, in milliseconds.
type TextMessage struct {
	Number string `json:"number"`
	Text   string `json:"text"`
	Delay  int    `json:"delay,omitempty"`
}

// MediaMessage is the body of a sendMedia call.
type MediaMessage struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	FileName  string `json:"fileName,omitempty"`
}

// MessageKey identifies a message on the WhatsApp network.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// SendResult is what the gateway returns for an accepted message.
type SendResult struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status,omitempty"`
}

// MessageID is the network message id of an accepted send.
func (r SendResult) MessageID() string { return r.Key.ID }

// SendError describes a failed gateway call.
type SendError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, strings.TrimSpace(body))
}

func (e *SendError) Unwrap() error { return e.Err }
