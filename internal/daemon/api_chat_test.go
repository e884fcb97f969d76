package daemon

import (
	"context"
	"net/http"
	"testing"

	"github.com/opsdeck/opsdeck/internal/gemini"
	"github.com/opsdeck/opsdeck/internal/models"
)

type staticGenerator struct {
	reply string
}

func (g staticGenerator) Generate(_ context.Context, history []models.ChatMessage) (string, error) {
	return g.reply, nil
}

func (f *apiFixture) enableChat(reply string) {
	f.api.chat = gemini.NewChat(staticGenerator{reply: reply}, f.store)
}

func TestChatUnconfigured(t *testing.T) {
	f := newTestAPI(t)
	rec := f.do(t, http.MethodPost, "/v1/chat", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	rec = f.do(t, http.MethodPost, "/v1/chat/abc/messages", `{"text":"hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestChatConversationRoundTrip(t *testing.T) {
	f := newTestAPI(t)
	f.enableChat("Здравствуйте! Чем могу помочь?")

	rec := f.do(t, http.MethodPost, "/v1/chat", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	created := decodeBody[V1ChatCreateResponse](t, rec)
	if created.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}
	base := "/v1/chat/" + created.ConversationID + "/messages"

	rec = f.do(t, http.MethodPost, base, `{"text":"Привет"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d (%s)", rec.Code, rec.Body.String())
	}
	reply := decodeBody[V1ChatSendResponse](t, rec)
	if reply.Message.Role != models.RoleAssistant || reply.Message.Content == "" {
		t.Fatalf("unexpected reply: %+v", reply.Message)
	}

	rec = f.do(t, http.MethodGet, base, "")
	history := decodeBody[V1ChatHistoryResponse](t, rec)
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history.Messages))
	}
	if history.Messages[0].Role != models.RoleUser || history.Messages[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", history.Messages)
	}

	rec = f.do(t, http.MethodGet, "/v1/chat", "")
	list := decodeBody[V1ChatListResponse](t, rec)
	if len(list.Conversations) != 1 || list.Conversations[0] != created.ConversationID {
		t.Fatalf("unexpected conversations: %v", list.Conversations)
	}
}

func TestChatResetConversation(t *testing.T) {
	f := newTestAPI(t)
	f.enableChat("ответ")

	rec := f.do(t, http.MethodPost, "/v1/chat", "")
	created := decodeBody[V1ChatCreateResponse](t, rec)
	base := "/v1/chat/" + created.ConversationID

	rec = f.do(t, http.MethodPost, base+"/messages", `{"text":"Привет"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, base, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d (%s)", rec.Code, rec.Body.String())
	}
	reset := decodeBody[V1ChatResetResponse](t, rec)
	if reset.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", reset.Deleted)
	}

	rec = f.do(t, http.MethodGet, base+"/messages", "")
	history := decodeBody[V1ChatHistoryResponse](t, rec)
	if len(history.Messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(history.Messages))
	}

	rec = f.do(t, http.MethodDelete, base, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second reset status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = f.do(t, http.MethodGet, base, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on conversation = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestChatRejectsEmptyText(t *testing.T) {
	f := newTestAPI(t)
	f.enableChat("reply")

	rec := f.do(t, http.MethodPost, "/v1/chat/abc/messages", `{"text":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestChatUnknownRoute(t *testing.T) {
	f := newTestAPI(t)
	f.enableChat("reply")

	rec := f.do(t, http.MethodGet, "/v1/chat/abc/other", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
