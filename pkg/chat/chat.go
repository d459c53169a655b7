// Package chat manages the text consultation: an append-only conversation
// history and the turn exchange with the analyst persona.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/ahouse2/financial-legal-analysis/pkg/core"
	"github.com/ahouse2/financial-legal-analysis/pkg/core/types"
)

const defaultChatModel = "gemini-3-pro-preview"

// Conversation is an append-only message history, safe for concurrent use.
type Conversation struct {
	mu       sync.RWMutex
	messages []types.ChatMessage
}

// NewConversation returns an empty history.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds one message to the history.
func (c *Conversation) Append(msg types.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the history in order.
func (c *Conversation) Messages() []types.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (types.ChatMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return types.ChatMessage{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Generator is the slice of the vendor client the chat service needs. It is
// satisfied by *genai.Models.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Service exchanges consultation turns with the analyst persona.
type Service struct {
	gen    Generator
	logger *slog.Logger
	model  string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// NewService wires a Service around gen.
func NewService(gen Generator, opts ...Option) (*Service, error) {
	if gen == nil {
		return nil, core.NewInvalidRequestError("chat service requires a generator")
	}
	s := &Service{gen: gen, logger: slog.Default(), model: defaultChatModel}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendTurn appends the user message to conv, sends the full history under
// the analyst persona, and on success appends and returns the reply. On
// failure the user message stays in the history so the caller can retry or
// display it; nothing else is appended.
func (s *Service) SendTurn(ctx context.Context, conv *Conversation, text string) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ChatMessage{}, core.NewInvalidRequestError("chat turn needs text")
	}

	conv.Append(types.ChatMessage{Role: types.RoleUser, Text: text})

	contents := historyToContents(conv.Messages())
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(core.AnalystSystemInstruction, genai.RoleUser),
	}

	resp, err := s.gen.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return types.ChatMessage{}, core.NewAPIError("chat turn failed", err)
	}

	replyText := strings.TrimSpace(resp.Text())
	if replyText == "" {
		return types.ChatMessage{}, core.NewEmptyResponseError("chat turn returned no text")
	}

	reply := types.ChatMessage{Role: types.RoleAssistant, Text: replyText}
	conv.Append(reply)
	s.logger.Debug("chat turn complete", "history_len", conv.Len())
	return reply, nil
}

func historyToContents(messages []types.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, role))
	}
	return contents
}
