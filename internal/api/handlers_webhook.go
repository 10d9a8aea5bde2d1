package api

import (
	"errors"
	"net/http"

	"github.com/ignite/whatsapp-warmup/internal/gateway"
	"github.com/ignite/whatsapp-warmup/internal/pkg/httputil"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// HandleIncomingMessage records direct replies from the instance's warm-up
// contacts. Echoes of our own sends, group and broadcast traffic, unknown
// senders and instances without a warm-up are acknowledged and ignored.
func (h *Handlers) HandleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	var msg gateway.WebhookMessage
	if !httputil.Decode(w, r, &msg) {
		return
	}
	logger.Info("webhook message received",
		"instance", msg.Instance,
		"jid", msg.Message.Key.RemoteJID,
		"from_me", msg.Message.Key.FromMe,
		"type", msg.Message.MessageType)

	recorded := false
	if msg.Inbound() {
		_, err := h.registry.RecordReply(msg.Instance, msg.Sender())
		switch {
		case err == nil:
			recorded = true
		case errors.Is(err, warmup.ErrConfigNotFound):
			logger.Debug("webhook for instance without warm-up", "instance", msg.Instance)
		case errors.Is(err, warmup.ErrUnknownContact):
			logger.Debug("reply from non warm-up contact ignored", "instance", msg.Instance, "jid", msg.Message.Key.RemoteJID)
		default:
			httputil.InternalError(w, err)
			return
		}
	}
	httputil.OKMessage(w, "Webhook received and processed", map[string]any{"recorded": recorded})
}

// HandleConnectionUpdate logs gateway connection status changes.
func (h *Handlers) HandleConnectionUpdate(w http.ResponseWriter, r *http.Request) {
	var upd gateway.ConnectionUpdate
	if !httputil.Decode(w, r, &upd) {
		return
	}
	logger.Info("connection status update", "instance", upd.Instance, "status", upd.Status, "state", upd.State)
	if upd.Status != "" && upd.Status != gateway.StatusOpen && h.scheduler.Running(upd.Instance) {
		logger.Warn("instance disconnected while its scheduler is running", "instance", upd.Instance, "status", upd.Status)
	}
	httputil.OKMessage(w, "Connection update received", nil)
}
