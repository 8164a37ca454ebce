package assist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/standinhq/standin/pkg/standin/channels"
	"github.com/standinhq/standin/pkg/standin/llm"
)

// fakeChat records inference calls and can block until released to simulate
// slow inference.
type fakeChat struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string
	err   error
	block chan struct{} // non-nil: Chat waits for close(block) or ctx
}

func (f *fakeChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-block:
		}
	}
	return f.reply, f.err
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeChat) call(i int) []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// fakeOutbound records sent messages and presence changes.
type fakeOutbound struct {
	mu       sync.Mutex
	sent     []string
	presence []bool
}

func (f *fakeOutbound) Send(_ context.Context, _ string, msg *channels.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg.Content)
	return nil
}

func (f *fakeOutbound) SendTyping(context.Context, string, bool) error { return nil }

func (f *fakeOutbound) SendPresence(_ context.Context, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, available)
	return nil
}

func (f *fakeOutbound) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestResponder(t *testing.T, delay time.Duration, chat *fakeChat) (*Responder, *FileStore, *fakeOutbound) {
	t.Helper()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.SetAvailable(false); err != nil {
		t.Fatalf("SetAvailable: %v", err)
	}

	out := &fakeOutbound{}
	cfg := DefaultConfig()
	r := NewResponder(cfg, store, NewDebouncer(delay, nil), NewInflightRegistry(), chat, out, nil)
	t.Cleanup(r.Stop)
	return r, store, out
}

func textMsg(from, content string) *channels.IncomingMessage {
	return &channels.IncomingMessage{
		Channel: "whatsapp",
		From:    from,
		ChatID:  from,
		Type:    channels.MessageText,
		Content: content,
	}
}

func TestResponderFilters(t *testing.T) {
	t.Parallel()

	t.Run("group messages are ignored", func(t *testing.T) {
		t.Parallel()
		chat := &fakeChat{reply: "hello"}
		r, store, _ := newTestResponder(t, 20*time.Millisecond, chat)

		msg := textMsg("123456789-1234@g.us", "hi all")
		msg.IsGroup = true
		r.HandleMessage(msg)

		time.Sleep(80 * time.Millisecond)
		if chat.callCount() != 0 {
			t.Error("group message triggered inference")
		}
		if tr, _ := store.Load(msg.From); tr != nil {
			t.Error("group message created a transcript")
		}
	})

	t.Run("non-text messages are ignored", func(t *testing.T) {
		t.Parallel()
		chat := &fakeChat{reply: "hello"}
		r, store, _ := newTestResponder(t, 20*time.Millisecond, chat)

		msg := textMsg("111@s.whatsapp.net", "[voice note]")
		msg.Type = channels.MessageAudio
		r.HandleMessage(msg)

		time.Sleep(80 * time.Millisecond)
		if chat.callCount() != 0 {
			t.Error("audio message triggered inference")
		}
		if tr, _ := store.Load(msg.From); tr != nil {
			t.Error("audio message created a transcript")
		}
	})

	t.Run("nothing happens while owner is available", func(t *testing.T) {
		t.Parallel()
		chat := &fakeChat{reply: "hello"}
		r, store, _ := newTestResponder(t, 20*time.Millisecond, chat)
		store.SetAvailable(true)

		r.HandleMessage(textMsg("111@s.whatsapp.net", "hi"))

		time.Sleep(80 * time.Millisecond)
		if chat.callCount() != 0 {
			t.Error("inference ran while owner available")
		}
		if tr, _ := store.Load("111@s.whatsapp.net"); tr != nil {
			t.Error("transcript created while owner available")
		}
	})
}

func TestResponderDebounceCollapse(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "I'll pass that on."}
	r, store, out := newTestResponder(t, 80*time.Millisecond, chat)

	sender := "111@s.whatsapp.net"
	r.HandleMessage(textMsg(sender, "hi"))
	time.Sleep(20 * time.Millisecond)
	r.HandleMessage(textMsg(sender, "there"))

	time.Sleep(250 * time.Millisecond)

	if got := chat.callCount(); got != 1 {
		t.Fatalf("inference calls = %d, want 1", got)
	}

	// Prompt holds the system turn plus the merged user turn.
	prompt := chat.call(0)
	if len(prompt) != 2 {
		t.Fatalf("prompt turns = %d, want 2", len(prompt))
	}
	if prompt[0].Role != "system" {
		t.Errorf("first prompt role = %q, want system", prompt[0].Role)
	}
	if got, want := prompt[1].Content, "hi\nthere"; got != want {
		t.Errorf("merged prompt = %q, want %q", got, want)
	}

	sent := out.sentMessages()
	if len(sent) != 1 || sent[0] != "I'll pass that on." {
		t.Errorf("sent = %v, want one reply", sent)
	}

	tr, err := store.Load(sender)
	if err != nil || tr == nil {
		t.Fatalf("Load = (%+v, %v)", tr, err)
	}
	if len(tr.Turns) != 3 {
		t.Fatalf("transcript turns = %d, want 3", len(tr.Turns))
	}
	if tr.Turns[1].Content != "hi\nthere" || tr.Turns[2].Role != RoleAssistant {
		t.Errorf("transcript = %+v, want merged user turn then assistant", tr.Turns)
	}
}

func TestResponderStaleReplyDiscarded(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "late reply", block: make(chan struct{})}
	r, store, out := newTestResponder(t, 30*time.Millisecond, chat)

	sender := "111@s.whatsapp.net"
	r.HandleMessage(textMsg(sender, "first"))

	// Wait for the timer to fire and inference to start (blocked).
	deadline := time.Now().Add(time.Second)
	for chat.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if chat.callCount() != 1 {
		t.Fatal("first inference never started")
	}

	// A new message supersedes the in-flight run.
	r.HandleMessage(textMsg(sender, "second"))
	close(chat.block)

	time.Sleep(200 * time.Millisecond)

	// The second cycle produced the one delivered reply.
	sent := out.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v, want exactly one reply", sent)
	}

	tr, _ := store.Load(sender)
	if tr == nil {
		t.Fatal("transcript missing")
	}
	if got, want := tr.Turns[1].Content, "first\nsecond"; got != want {
		t.Errorf("user turn = %q, want %q", got, want)
	}
	assistantTurns := 0
	for _, turn := range tr.Turns {
		if turn.Role == RoleAssistant {
			assistantTurns++
		}
	}
	if assistantTurns != 1 {
		t.Errorf("assistant turns = %d, want 1 (stale reply must be discarded)", assistantTurns)
	}
}

// gatedStore wraps FileStore and holds back one designated Load call so the
// interleaving around the reply commit can be pinned down.
type gatedStore struct {
	*FileStore
	mu      sync.Mutex
	loads   int
	blockAt int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Load(sender string) (*Transcript, error) {
	g.mu.Lock()
	g.loads++
	n := g.loads
	g.mu.Unlock()

	if n == g.blockAt {
		close(g.entered)
		<-g.release
	}
	return g.FileStore.Load(sender)
}

func TestResponderSupersededDuringCommitReload(t *testing.T) {
	t.Parallel()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := fileStore.SetAvailable(false); err != nil {
		t.Fatalf("SetAvailable: %v", err)
	}

	// Load #1 comes from handling the message, #2 from the reply cycle
	// before inference, #3 is the reload before committing the reply.
	store := &gatedStore{
		FileStore: fileStore,
		blockAt:   3,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}

	chat := &fakeChat{reply: "on my way"}
	out := &fakeOutbound{}
	r := NewResponder(DefaultConfig(), store, NewDebouncer(30*time.Millisecond, nil), NewInflightRegistry(), chat, out, nil)
	t.Cleanup(r.Stop)

	sender := "111@s.whatsapp.net"
	r.HandleMessage(textMsg(sender, "first"))

	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("reply cycle never reached the commit reload")
	}

	// A newer message lands while the finished run is reloading to commit.
	// The run is superseded at this point and its reply must be dropped.
	r.HandleMessage(textMsg(sender, "second"))
	close(store.release)

	time.Sleep(250 * time.Millisecond)

	sent := out.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v, want exactly one reply", sent)
	}

	tr, _ := store.FileStore.Load(sender)
	if tr == nil {
		t.Fatal("transcript missing")
	}
	if got, want := tr.Turns[1].Content, "first\nsecond"; got != want {
		t.Errorf("user turn = %q, want %q", got, want)
	}
	assistantTurns := 0
	for _, turn := range tr.Turns {
		if turn.Role == RoleAssistant {
			assistantTurns++
		}
	}
	if assistantTurns != 1 {
		t.Errorf("assistant turns = %d, want 1 (superseded run must not commit)", assistantTurns)
	}
	if last := tr.Turns[len(tr.Turns)-1]; last.Role != RoleAssistant {
		t.Errorf("last turn role = %q, want the assistant reply appended after the merged text", last.Role)
	}
}

func TestResponderFailurePolicy(t *testing.T) {
	t.Parallel()

	t.Run("inference error yields silence", func(t *testing.T) {
		t.Parallel()
		chat := &fakeChat{err: context.DeadlineExceeded}
		r, store, out := newTestResponder(t, 20*time.Millisecond, chat)

		sender := "111@s.whatsapp.net"
		r.HandleMessage(textMsg(sender, "hi"))
		time.Sleep(120 * time.Millisecond)

		if len(out.sentMessages()) != 0 {
			t.Error("a failed inference must not send anything")
		}
		tr, _ := store.Load(sender)
		if tr == nil || len(tr.Turns) != 2 {
			t.Errorf("transcript = %+v, want only system and user turns", tr)
		}
	})

	t.Run("empty reply is not sent", func(t *testing.T) {
		t.Parallel()
		chat := &fakeChat{reply: ""}
		r, _, out := newTestResponder(t, 20*time.Millisecond, chat)

		r.HandleMessage(textMsg("111@s.whatsapp.net", "hi"))
		time.Sleep(120 * time.Millisecond)

		if len(out.sentMessages()) != 0 {
			t.Error("an empty reply must not be sent")
		}
	})
}

func TestResponderSetAvailable(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "hello"}
	r, store, out := newTestResponder(t, 60*time.Millisecond, chat)

	sender := "111@s.whatsapp.net"
	r.HandleMessage(textMsg(sender, "hi"))

	// The owner comes back before the timer fires.
	if err := r.SetAvailable(context.Background(), true); err != nil {
		t.Fatalf("SetAvailable: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if chat.callCount() != 0 {
		t.Error("pending reply fired after the owner became available")
	}
	if !store.Available() {
		t.Error("store flag not updated")
	}

	out.mu.Lock()
	presence := append([]bool(nil), out.presence...)
	out.mu.Unlock()
	if len(presence) != 1 || !presence[0] {
		t.Errorf("presence updates = %v, want [true]", presence)
	}
}
