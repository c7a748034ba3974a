// Package chat relays a conversation to the backend under a fixed persona.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"voice-gateway/internal/backend"
	"voice-gateway/internal/ctx"
	"voice-gateway/internal/middleware"
	"voice-gateway/internal/respond"
	"voice-gateway/internal/shared"

	"github.com/labstack/echo/v4"
)

// messageInput is the wire shape of one message. Clients send the body as
// either "text" or "content"; "text" wins when both are present.
type messageInput struct {
	Role    json.RawMessage `json:"role"`
	Content json.RawMessage `json:"content"`
	Text    json.RawMessage `json:"text"`
}

// resolveMessage never fails: an element that is not an object becomes an
// empty user message so the conversation keeps its length and order.
func resolveMessage(raw json.RawMessage) shared.ChatMessage {
	msg := shared.ChatMessage{Role: shared.RoleUser}
	var in messageInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return msg
	}
	var role string
	if json.Unmarshal(in.Role, &role) == nil && role != "" {
		msg.Role = role
	}
	if text, ok := fieldText(in.Text); ok {
		msg.Content = text
	} else if content, ok := fieldText(in.Content); ok {
		msg.Content = content
	}
	return msg
}

// fieldText reports whether a field is present and not null. Non-string
// values are kept in their JSON form.
func fieldText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

type requestBody struct {
	Messages json.RawMessage `json:"messages"`
}

// decodeMessages resolves aliases and defaults once, element by element. A
// missing or non-array "messages" is an empty conversation.
func decodeMessages(body io.Reader) ([]shared.ChatMessage, error) {
	var req requestBody
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	var elements []json.RawMessage
	if len(req.Messages) > 0 {
		if err := json.Unmarshal(req.Messages, &elements); err != nil {
			elements = nil
		}
	}
	messages := make([]shared.ChatMessage, 0, len(elements))
	for _, raw := range elements {
		messages = append(messages, resolveMessage(raw))
	}
	return messages, nil
}

type Manager struct {
	backend     backend.Adapter
	persona     string
	temperature float64
}

func NewManager(b backend.Adapter, persona string, temperature float64) *Manager {
	if persona == "" {
		persona = DefaultPersona
	}
	return &Manager{backend: b, persona: persona, temperature: temperature}
}

func (m *Manager) Chat(c *ctx.Context) (middleware.Summary, error) {
	messages, err := decodeMessages(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, shared.InternalError(fmt.Errorf("decode chat body: %w", err))
	}

	preview := ""
	if len(messages) > 0 {
		preview = shared.Preview(messages[len(messages)-1].Content, shared.ChatPreviewLen)
	}
	c.Log.Infow("chat", "messages_len", len(messages), "last", preview)

	reply, err := m.backend.Chat(context.WithoutCancel(c.Request().Context()), messages, m.persona, m.temperature)
	if err != nil {
		return nil, err
	}
	return middleware.Summary{
		"messages_len": len(messages),
		"reply_len":    utf8.RuneCountInString(reply),
	}, respond.Emit(c, respond.TextResult{Text: reply})
}
