// Package gemini implements the daemon's chat service against Google's
// generative-AI API. The API key stays inside the daemon: clients send
// plain messages to the local API and never see the credential.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/opsdeck/opsdeck/internal/models"
)

// Generation parameters for the chat model.
const (
	temperature     float32 = 0.7
	topK            float32 = 40
	topP            float32 = 0.95
	maxOutputTokens int32   = 8192
)

// ErrEmptyMessage rejects a blank outbound message.
var ErrEmptyMessage = errors.New("message is empty")

// Generator produces one model reply for a conversation history. The last
// history entry is the new user message.
type Generator interface {
	Generate(ctx context.Context, history []models.ChatMessage) (string, error)
}

// Client implements Generator via the genai SDK.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient dials the generative-AI API with the daemon-held key.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required: add it to the secrets bundle")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

var _ Generator = (*Client)(nil)

// Generate sends the full history as context and returns the reply text.
func (c *Client) Generate(ctx context.Context, history []models.ChatMessage) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := genai.Role(genai.RoleUser)
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		TopK:            genai.Ptr(topK),
		TopP:            genai.Ptr(topP),
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("model returned an empty reply")
	}
	return text, nil
}

// Transcript persists chat messages. Implemented by the sqlite store; the
// chat service appends every accepted message and reply.
type Transcript interface {
	AppendMessage(conversationID string, msg models.ChatMessage) error
	Messages(conversationID string) ([]models.ChatMessage, error)
}

// Chat is the conversation service. Each conversation's history is
// append-only; messages within one conversation are serialized so two
// concurrent sends cannot interleave their history snapshots.
type Chat struct {
	generator  Generator
	transcript Transcript
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	history []models.ChatMessage
}

// NewChat builds a chat service. transcript may be nil to keep
// conversations memory-only.
func NewChat(generator Generator, transcript Transcript) *Chat {
	return &Chat{
		generator:  generator,
		transcript: transcript,
		now:        time.Now,
		sessions:   make(map[string]*session),
	}
}

// Send appends the user message to the conversation, asks the model for a
// reply with the whole history as context, appends and returns the reply.
// A generation failure leaves the user message in the history; there is no
// retry.
func (c *Chat) Send(ctx context.Context, conversationID, text string) (models.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	s, err := c.session(conversationID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	userMsg := models.ChatMessage{Role: models.RoleUser, Content: text, Timestamp: c.now().UTC()}
	s.history = append(s.history, userMsg)
	if err := c.persist(conversationID, userMsg); err != nil {
		return models.ChatMessage{}, err
	}

	reply, err := c.generator.Generate(ctx, s.history)
	if err != nil {
		return models.ChatMessage{}, err
	}
	replyMsg := models.ChatMessage{Role: models.RoleAssistant, Content: reply, Timestamp: c.now().UTC()}
	s.history = append(s.history, replyMsg)
	if err := c.persist(conversationID, replyMsg); err != nil {
		return models.ChatMessage{}, err
	}
	return replyMsg, nil
}

// History returns a copy of the conversation's messages in order.
func (c *Chat) History(conversationID string) ([]models.ChatMessage, error) {
	s, err := c.session(conversationID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.history))
	copy(out, s.history)
	return out, nil
}

// Reset drops the conversation's in-memory history. The caller is
// responsible for clearing the persisted transcript; the next touch
// reloads from it.
func (c *Chat) Reset(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, conversationID)
}

// session returns the conversation's session, loading persisted history on
// first touch.
func (c *Chat) session(conversationID string) (*session, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("conversation id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[conversationID]; ok {
		return s, nil
	}
	s := &session{}
	if c.transcript != nil {
		history, err := c.transcript.Messages(conversationID)
		if err != nil {
			return nil, fmt.Errorf("load transcript %s: %w", conversationID, err)
		}
		s.history = history
	}
	c.sessions[conversationID] = s
	return s, nil
}

func (c *Chat) persist(conversationID string, msg models.ChatMessage) error {
	if c.transcript == nil {
		return nil
	}
	if err := c.transcript.AppendMessage(conversationID, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return nil
}
