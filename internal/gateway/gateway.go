// Package gateway defines the narrow external-collaborator interfaces named
// in spec.md §6: the LLM provider and the email/chat backends. The core
// engine depends only on these interfaces; concrete HTTP implementations and
// the style-transformation post-filter are adapters layered on top, never
// called from internal/engine directly.
package gateway

import (
	"context"
	"errors"
)

// ErrEmptyRecipients is returned by SendEmail/SendDM when the recipient
// union is empty after normalization, per spec.md §6 ("MUST reject an empty
// recipient union").
var ErrEmptyRecipients = errors.New("gateway: empty recipient union")

// Message is one opaque LLM chat message; content is never interpreted by
// the core.
type Message struct {
	Role    string
	Content string
}

// LLMGateway generates text from a message history. Failures propagate as a
// single error kind; retry policy is the caller's responsibility.
type LLMGateway interface {
	Generate(ctx context.Context, messages []Message, model string) (text string, tokensUsed int, err error)
}

// SendEmailRequest is the payload for EmailGateway.SendEmail.
type SendEmailRequest struct {
	Sender      string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	ThreadID    string
	SentAtISO   string
}

// EmailGateway is the narrow HTTP-verb surface for the email backend.
type EmailGateway interface {
	EnsureMailbox(ctx context.Context, address, displayName string) error
	SendEmail(ctx context.Context, req SendEmailRequest) (id string, err error)
}

// SendDMRequest is the payload for ChatGateway.SendDM.
type SendDMRequest struct {
	Sender    string
	Recipient string
	Body      string
	SentAtISO string
}

// CreateRoomRequest is the payload for ChatGateway.CreateRoom.
type CreateRoomRequest struct {
	Name         string
	Participants []string
	Slug         string
}

// SendRoomMessageRequest is the payload for ChatGateway.SendRoomMessage.
type SendRoomMessageRequest struct {
	Sender    string
	Body      string
	SentAtISO string
}

// ChatGateway is the narrow HTTP-verb surface for the chat backend.
type ChatGateway interface {
	EnsureUser(ctx context.Context, handle, displayName string) error
	SendDM(ctx context.Context, req SendDMRequest) error
	CreateRoom(ctx context.Context, req CreateRoomRequest) (slug string, err error)
	SendRoomMessage(ctx context.Context, slug string, req SendRoomMessageRequest) error
}

// StyleFilter is the pure post-process hook named in spec.md §9: it
// transforms outgoing text for a persona/message-type pair. It is invoked
// only by gateway adapters (see StyledEmailGateway/StyledChatGateway below),
// never by internal/engine.
type StyleFilter func(text string, personaID int, messageType string) string

// StyledEmailGateway wraps an EmailGateway, running the subject and body
// through a StyleFilter before the underlying send.
type StyledEmailGateway struct {
	Inner  EmailGateway
	Filter StyleFilter
}

func (g StyledEmailGateway) EnsureMailbox(ctx context.Context, address, displayName string) error {
	return g.Inner.EnsureMailbox(ctx, address, displayName)
}

func (g StyledEmailGateway) SendEmail(ctx context.Context, req SendEmailRequest) (string, error) {
	if g.Filter != nil {
		req.Subject = g.Filter(req.Subject, 0, "email_subject")
		req.Body = g.Filter(req.Body, 0, "email_body")
	}
	return g.Inner.SendEmail(ctx, req)
}

// StyledChatGateway wraps a ChatGateway, running outgoing text through a
// StyleFilter before the underlying send.
type StyledChatGateway struct {
	Inner  ChatGateway
	Filter StyleFilter
}

func (g StyledChatGateway) EnsureUser(ctx context.Context, handle, displayName string) error {
	return g.Inner.EnsureUser(ctx, handle, displayName)
}

func (g StyledChatGateway) SendDM(ctx context.Context, req SendDMRequest) error {
	if g.Filter != nil {
		req.Body = g.Filter(req.Body, 0, "chat_dm")
	}
	return g.Inner.SendDM(ctx, req)
}

func (g StyledChatGateway) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	return g.Inner.CreateRoom(ctx, req)
}

func (g StyledChatGateway) SendRoomMessage(ctx context.Context, slug string, req SendRoomMessageRequest) error {
	if g.Filter != nil {
		req.Body = g.Filter(req.Body, 0, "chat_room")
	}
	return g.Inner.SendRoomMessage(ctx, slug, req)
}
