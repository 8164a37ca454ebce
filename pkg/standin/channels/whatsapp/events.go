// Package whatsapp – events.go processes incoming whatsmeow events and
// converts them into channels.IncomingMessage values.
package whatsapp

import (
	"fmt"
	"strings"

	"github.com/standinhq/standin/pkg/standin/channels"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ConnectionState represents the current connection state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateWaitingQR    ConnectionState = "waiting_qr"
	StateLoggingOut   ConnectionState = "logging_out"
)

// handleEvent is the main whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.handleConnected(evt)

	case *events.Disconnected:
		w.handleDisconnected(evt)

	case *events.StreamReplaced:
		w.handleStreamReplaced(evt)

	case *events.LoggedOut:
		w.handleLoggedOut(evt)

	case *events.KeepAliveTimeout:
		w.handleKeepAliveTimeout(evt)

	case *events.KeepAliveRestored:
		w.logger.Info("keep-alive restored")
		w.errorCount.Store(0)

	case *events.PairSuccess:
		w.logger.Info("device paired", "jid", evt.ID, "platform", evt.Platform)
	}
}

// handleConnected handles successful connection.
func (w *WhatsApp) handleConnected(_ *events.Connected) {
	w.setState(StateConnected)
	w.connected.Store(true)
	w.errorCount.Store(0)
	w.reconnectAttempts.Store(0)

	w.logger.Info("connected", "jid", w.getClientJID())
}

// handleDisconnected handles disconnection.
func (w *WhatsApp) handleDisconnected(_ *events.Disconnected) {
	previous := w.getState()
	w.setState(StateDisconnected)

	w.logger.Warn("disconnected", "was_connected", w.connected.Load())
	w.connected.Store(false)

	// Attempt reconnection if not intentional.
	if previous == StateConnected && w.ctx.Err() == nil {
		go w.attemptReconnect()
	}
}

// handleStreamReplaced handles when another device takes over.
func (w *WhatsApp) handleStreamReplaced(_ *events.StreamReplaced) {
	w.setState(StateDisconnected)
	w.connected.Store(false)
	w.logger.Error("stream replaced, another device connected")
}

// handleLoggedOut handles session invalidation.
func (w *WhatsApp) handleLoggedOut(evt *events.LoggedOut) {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	reason := "unknown"
	if evt.Reason != 0 {
		reason = evt.Reason.String()
	}
	w.logger.Error("logged out", "reason", reason, "on_connect", evt.OnConnect)

	// Session is gone; a fresh QR scan is needed.
	go func() {
		if err := w.loginWithQR(w.ctx); err != nil {
			w.logger.Warn("QR re-login failed", "error", err)
		}
	}()
}

// handleKeepAliveTimeout handles keep-alive failures. Repeated failures mean
// a half-open connection, so force a reconnect.
func (w *WhatsApp) handleKeepAliveTimeout(evt *events.KeepAliveTimeout) {
	w.logger.Warn("keep-alive timeout",
		"error_count", evt.ErrorCount,
		"last_success", evt.LastSuccess)

	w.errorCount.Add(1)

	if evt.ErrorCount >= 3 && w.getState() == StateConnected {
		w.logger.Error("keep-alive failed repeatedly, forcing reconnection",
			"error_count", evt.ErrorCount)
		w.setState(StateReconnecting)
		w.connected.Store(false)
		go w.attemptReconnect()
	}
}

// handleMessageEvt processes an incoming WhatsApp message event.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	// Skip messages from self.
	if evt.Info.IsFromMe {
		return
	}

	// Skip status broadcasts.
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	// Resolve sender JID. WhatsApp may use LID (Linked Identity) format
	// instead of phone numbers; resolve to the phone JID so transcript
	// keys stay stable.
	senderJID := evt.Info.Sender
	resolvedSender := senderJID.String()
	if senderJID.Server == "lid" && w.client != nil && w.client.Store != nil {
		if altJID, err := w.client.Store.GetAltJID(w.ctx, senderJID); err == nil && !altJID.IsEmpty() {
			resolvedSender = altJID.String()
		}
	}

	chatJID := evt.Info.Chat
	resolvedChat := chatJID.String()
	if chatJID.Server == "lid" && w.client != nil && w.client.Store != nil {
		if altJID, err := w.client.Store.GetAltJID(w.ctx, chatJID); err == nil && !altJID.IsEmpty() {
			resolvedChat = altJID.String()
		}
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      resolvedSender,
		FromName:  evt.Info.PushName,
		ChatID:    resolvedChat,
		IsGroup:   evt.Info.IsGroup,
		Timestamp: evt.Info.Timestamp,
	}

	extractMessageContent(evt.Message, msg)
	w.emitMessage(msg)
}

// extractMessageContent extracts text content from a WhatsApp message and
// tags non-text messages by type so the responder can skip them.
func extractMessageContent(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		msg.Type = channels.MessageOther
		return
	}

	// Text message (simple conversation).
	if waMsg.Conversation != nil {
		msg.Type = channels.MessageText
		msg.Content = waMsg.GetConversation()
		return
	}

	// Extended text message (with preview, formatting, etc.).
	if ext := waMsg.ExtendedTextMessage; ext != nil {
		msg.Type = channels.MessageText
		msg.Content = ext.GetText()
		return
	}

	switch {
	case waMsg.ImageMessage != nil:
		msg.Type = channels.MessageImage
	case waMsg.AudioMessage != nil:
		msg.Type = channels.MessageAudio
	case waMsg.VideoMessage != nil:
		msg.Type = channels.MessageVideo
	case waMsg.DocumentMessage != nil:
		msg.Type = channels.MessageDocument
	case waMsg.StickerMessage != nil:
		msg.Type = channels.MessageSticker
	default:
		msg.Type = channels.MessageOther
	}
}

// ---------- Helpers ----------

// parseJID converts a string JID to types.JID.
// Accepts formats: "5511999999999" or "5511999999999@s.whatsapp.net"
// or group IDs like "123456789-1234@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	// Already a full JID with server.
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	// Bare phone number, add @s.whatsapp.net. Strip non-digits first.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}
