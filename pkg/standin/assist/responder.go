// Package assist – responder.go orchestrates the reply cycle: gate on
// availability, merge the message into the transcript, debounce, run
// inference, re-validate, and send. All per-sender state lives in the
// injected debouncer and inflight registry.
package assist

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/standinhq/standin/pkg/standin/channels"
	"github.com/standinhq/standin/pkg/standin/llm"
)

// ChatClient is the inference dependency of the responder.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Outbound is the messaging side the responder talks back through.
// channels.PresenceChannel satisfies it.
type Outbound interface {
	Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error
	SendTyping(ctx context.Context, to string, active bool) error
	SendPresence(ctx context.Context, available bool) error
}

// Responder consumes incoming messages and produces automated replies while
// the owner is unavailable.
type Responder struct {
	cfg      *Config
	store    Store
	debounce *Debouncer
	inflight *InflightRegistry
	chat     ChatClient
	out      Outbound
	logger   *slog.Logger

	// ctx is the parent of every inference run; cancelling it stops all
	// in-flight work on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewResponder wires a responder from its dependencies.
func NewResponder(cfg *Config, store Store, debounce *Debouncer, inflight *InflightRegistry, chat ChatClient, out Outbound, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Responder{
		cfg:      cfg,
		store:    store,
		debounce: debounce,
		inflight: inflight,
		chat:     chat,
		out:      out,
		logger:   logger.With("component", "responder"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run consumes messages until the channel closes or ctx is done.
func (r *Responder) Run(ctx context.Context, in <-chan *channels.IncomingMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			r.HandleMessage(msg)
		}
	}
}

// Stop cancels pending timers and in-flight inference.
func (r *Responder) Stop() {
	r.debounce.Stop()
	r.inflight.CancelAll()
	r.cancel()
}

// HandleMessage runs the synchronous part of the reply cycle for one
// incoming message. Inference happens later, on the debounce timer.
func (r *Responder) HandleMessage(msg *channels.IncomingMessage) {
	sender := msg.From

	// Group chats never get automated replies.
	if msg.IsGroup || strings.Contains(sender, "@g.us") {
		return
	}

	// Only text carries into the transcript.
	if msg.Type != channels.MessageText || strings.TrimSpace(msg.Content) == "" {
		return
	}

	// While the owner is available nothing is automated; drop any work
	// already queued for this sender so a stale reply cannot land after
	// the toggle.
	if r.store.Available() {
		r.debounce.CancelIfArmed(sender)
		r.inflight.Cancel(sender)
		return
	}

	// A new message supersedes any inference already running.
	r.inflight.Cancel(sender)

	transcript, err := r.store.Load(sender)
	if err != nil {
		r.logger.Error("loading transcript", "sender", sender, "error", err)
		return
	}
	if transcript == nil {
		transcript = NewTranscript(BuildSystemPrompt(r.cfg.Instructions, sender))
	}
	transcript.MergeUserText(msg.Content)

	if err := r.store.Save(sender, transcript); err != nil {
		r.logger.Error("saving transcript", "sender", sender, "error", err)
		return
	}

	chatID := msg.ChatID
	if chatID == "" {
		chatID = sender
	}
	r.debounce.Arm(sender, func() {
		r.fireReply(sender, chatID)
	})

	r.logger.Debug("message merged, reply armed",
		"sender", sender, "delay", r.debounce.Delay())
}

// fireReply runs once the sender has been quiet for the full debounce delay.
func (r *Responder) fireReply(sender, chatID string) {
	// The flag may have flipped while the timer was pending.
	if r.store.Available() {
		return
	}

	transcript, err := r.store.Load(sender)
	if err != nil || transcript == nil || transcript.LastUserText() == "" {
		return
	}

	ctx, handle := r.inflight.Issue(r.ctx, sender)

	start := time.Now()
	r.logger.Info("generating reply", "sender", sender, "run_id", handle.ID)

	if err := r.out.SendTyping(ctx, chatID, true); err != nil {
		r.logger.Debug("typing indicator failed", "sender", sender, "error", err)
	}

	reply, err := r.chat.Chat(ctx, toLLMMessages(transcript.Turns))

	if terr := r.out.SendTyping(context.WithoutCancel(ctx), chatID, false); terr != nil {
		r.logger.Debug("typing indicator failed", "sender", sender, "error", terr)
	}

	if err != nil {
		// Failure policy is silence: the sender gets nothing rather
		// than a canned apology.
		r.logger.Error("inference failed", "sender", sender,
			"run_id", handle.ID, "error", err)
		r.inflight.Release(sender, handle)
		return
	}

	// A newer message may have superseded this run while inference was in
	// flight; its result must not be committed.
	if !r.inflight.Current(sender, handle) {
		r.logger.Info("discarding stale reply", "sender", sender, "run_id", handle.ID)
		return
	}

	if reply == "" {
		r.inflight.Release(sender, handle)
		return
	}

	// Re-load so the append lands on the latest persisted state.
	transcript, err = r.store.Load(sender)
	if err != nil || transcript == nil {
		r.inflight.Release(sender, handle)
		return
	}

	// Releasing while still current is the commit gate: a message that
	// arrived during the reload has already cancelled this handle, and its
	// merged text must not be followed by this reply.
	if !r.inflight.Release(sender, handle) {
		r.logger.Info("discarding stale reply", "sender", sender, "run_id", handle.ID)
		return
	}

	transcript.AppendAssistant(reply)
	if err := r.store.Save(sender, transcript); err != nil {
		r.logger.Error("saving reply", "sender", sender, "error", err)
		return
	}

	if err := r.out.Send(context.WithoutCancel(ctx), chatID, &channels.OutgoingMessage{Content: reply}); err != nil {
		r.logger.Error("sending reply", "sender", sender, "error", err)
	} else {
		r.logger.Info("reply sent", "sender", sender,
			"run_id", handle.ID, "elapsed", time.Since(start))
	}
}

// SetAvailable flips the availability flag, pushes the matching WhatsApp
// presence, and drops all queued work when the owner comes back.
func (r *Responder) SetAvailable(ctx context.Context, available bool) error {
	if err := r.store.SetAvailable(available); err != nil {
		return err
	}

	if available {
		r.debounce.Stop()
		r.inflight.CancelAll()
	}

	if err := r.out.SendPresence(ctx, available); err != nil {
		r.logger.Debug("presence update failed", "error", err)
	}

	r.logger.Info("availability changed", "available", available)
	return nil
}

// toLLMMessages converts transcript turns to the wire format.
func toLLMMessages(turns []Turn) []llm.Message {
	messages := make([]llm.Message, len(turns))
	for i, turn := range turns {
		messages[i] = llm.Message{Role: string(turn.Role), Content: turn.Content}
	}
	return messages
}
