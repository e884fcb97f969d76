package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/opsdeck/opsdeck/internal/models"
)

type fakeGenerator struct {
	mu        sync.Mutex
	histories [][]models.ChatMessage
	reply     string
	err       error
}

func (g *fakeGenerator) Generate(_ context.Context, history []models.ChatMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snapshot := make([]models.ChatMessage, len(history))
	copy(snapshot, history)
	g.histories = append(g.histories, snapshot)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return fmt.Sprintf("reply %d", len(g.histories)), nil
}

type memTranscript struct {
	mu       sync.Mutex
	messages map[string][]models.ChatMessage
}

func newMemTranscript() *memTranscript {
	return &memTranscript{messages: make(map[string][]models.ChatMessage)}
}

func (t *memTranscript) AppendMessage(id string, msg models.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages[id] = append(t.messages[id], msg)
	return nil
}

func (t *memTranscript) Messages(id string) ([]models.ChatMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ChatMessage, len(t.messages[id]))
	copy(out, t.messages[id])
	return out, nil
}

func TestChatSendAppendsBothSides(t *testing.T) {
	gen := &fakeGenerator{reply: "hello back"}
	chat := NewChat(gen, nil)

	reply, err := chat.Send(context.Background(), "c1", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Role != models.RoleAssistant || reply.Content != "hello back" {
		t.Fatalf("reply = %+v", reply)
	}

	history, err := chat.History("c1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want 2", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != "hello" {
		t.Fatalf("history[0] = %+v", history[0])
	}
}

func TestChatSendsFullHistoryAsContext(t *testing.T) {
	gen := &fakeGenerator{}
	chat := NewChat(gen, nil)
	ctx := context.Background()

	chat.Send(ctx, "c1", "first")
	chat.Send(ctx, "c1", "second")

	if len(gen.histories) != 2 {
		t.Fatalf("generate calls = %d, want 2", len(gen.histories))
	}
	// Second call sees user, assistant, user.
	second := gen.histories[1]
	if len(second) != 3 {
		t.Fatalf("second context = %d messages, want 3", len(second))
	}
	if second[1].Role != models.RoleAssistant {
		t.Fatalf("second context[1] = %+v", second[1])
	}
	if second[2].Content != "second" {
		t.Fatalf("second context[2] = %+v", second[2])
	}
}

func TestChatResetDropsCachedHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "back"}
	transcript := newMemTranscript()
	chat := NewChat(gen, transcript)

	if _, err := chat.Send(context.Background(), "c1", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	transcript.mu.Lock()
	delete(transcript.messages, "c1")
	transcript.mu.Unlock()
	chat.Reset("c1")

	history, err := chat.History("c1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history = %d messages, want 0", len(history))
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	chat := NewChat(&fakeGenerator{}, nil)
	if _, err := chat.Send(context.Background(), "c1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if _, err := chat.Send(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for empty conversation id")
	}
}

func TestChatGenerationFailureKeepsUserMessage(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	chat := NewChat(gen, nil)

	if _, err := chat.Send(context.Background(), "c1", "hi"); err == nil {
		t.Fatal("expected generation error")
	}
	history, _ := chat.History("c1")
	if len(history) != 1 || history[0].Role != models.RoleUser {
		t.Fatalf("history after failure = %+v", history)
	}
}

func TestChatConversationsAreIsolated(t *testing.T) {
	chat := NewChat(&fakeGenerator{}, nil)
	ctx := context.Background()
	chat.Send(ctx, "a", "one")
	chat.Send(ctx, "b", "two")

	ha, _ := chat.History("a")
	hb, _ := chat.History("b")
	if len(ha) != 2 || len(hb) != 2 {
		t.Fatalf("histories = %d/%d, want 2/2", len(ha), len(hb))
	}
	if ha[0].Content == hb[0].Content {
		t.Fatal("conversations share messages")
	}
}

func TestChatPersistsAndReloadsTranscript(t *testing.T) {
	transcript := newMemTranscript()
	ctx := context.Background()

	chat := NewChat(&fakeGenerator{reply: "ok"}, transcript)
	if _, err := chat.Send(ctx, "c1", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// A fresh service over the same transcript resumes the conversation.
	resumed := NewChat(&fakeGenerator{reply: "again"}, transcript)
	history, err := resumed.History("c1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("resumed history = %d messages, want 2", len(history))
	}
	if _, err := resumed.Send(ctx, "c1", "more"); err != nil {
		t.Fatalf("send after resume: %v", err)
	}
	stored, _ := transcript.Messages("c1")
	if len(stored) != 4 {
		t.Fatalf("stored messages = %d, want 4", len(stored))
	}
}

func TestChatSerializesConcurrentSends(t *testing.T) {
	gen := &fakeGenerator{}
	chat := NewChat(gen, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			chat.Send(ctx, "c1", fmt.Sprintf("msg %d", n))
		}(i)
	}
	wg.Wait()

	history, _ := chat.History("c1")
	if len(history) != 16 {
		t.Fatalf("history = %d messages, want 16", len(history))
	}
	// Strict user/assistant alternation proves sends never interleaved.
	for i, msg := range history {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleAssistant
		}
		if msg.Role != want {
			t.Fatalf("history[%d].Role = %q, want %q", i, msg.Role, want)
		}
	}
}
