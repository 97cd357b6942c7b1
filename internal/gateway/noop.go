package gateway

import (
	"context"
	"fmt"
	"log"
)

// LoggingLLMGateway stands in for a real LLM backend when none is
// configured: it logs the request and returns a short deterministic stub
// response rather than failing, matching planner.Service's own strict/
// non-strict fallback contract one level up (this is the "no provider
// configured" case, not the "provider call failed" case).
type LoggingLLMGateway struct {
	Logger *log.Logger
}

func (g *LoggingLLMGateway) Generate(ctx context.Context, messages []Message, model string) (string, int, error) {
	g.logger().Printf("gateway: no LLM backend configured, returning stub response (model=%s, %d messages)", model, len(messages))
	return "(no LLM backend configured)", 0, nil
}

// LoggingEmailGateway stands in for a real email backend when none is
// configured: sends are logged, not delivered anywhere.
type LoggingEmailGateway struct {
	Logger *log.Logger
}

func (g *LoggingEmailGateway) EnsureMailbox(ctx context.Context, address, displayName string) error {
	g.logger().Printf("gateway: ensure mailbox %s (%s) [no backend configured]", address, displayName)
	return nil
}

func (g *LoggingEmailGateway) SendEmail(ctx context.Context, req SendEmailRequest) (string, error) {
	if len(req.To) == 0 && len(req.CC) == 0 && len(req.BCC) == 0 {
		return "", ErrEmptyRecipients
	}
	g.logger().Printf("gateway: email %s -> %v [no backend configured]: %s", req.Sender, req.To, req.Subject)
	return fmt.Sprintf("logged-%s", req.ThreadID), nil
}

// LoggingChatGateway stands in for a real chat backend when none is
// configured: sends are logged, not delivered anywhere.
type LoggingChatGateway struct {
	Logger *log.Logger
}

func (g *LoggingChatGateway) logger() *log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Default()
}

func (g *LoggingEmailGateway) logger() *log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Default()
}

func (g *LoggingLLMGateway) logger() *log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Default()
}

func (g *LoggingChatGateway) EnsureUser(ctx context.Context, handle, displayName string) error {
	g.logger().Printf("gateway: ensure chat user %s (%s) [no backend configured]", handle, displayName)
	return nil
}

func (g *LoggingChatGateway) SendDM(ctx context.Context, req SendDMRequest) error {
	if req.Recipient == "" {
		return ErrEmptyRecipients
	}
	g.logger().Printf("gateway: dm %s -> %s [no backend configured]", req.Sender, req.Recipient)
	return nil
}

func (g *LoggingChatGateway) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	if len(req.Participants) == 0 {
		return "", ErrEmptyRecipients
	}
	g.logger().Printf("gateway: create room %s %v [no backend configured]", req.Name, req.Participants)
	if req.Slug != "" {
		return req.Slug, nil
	}
	return req.Name, nil
}

func (g *LoggingChatGateway) SendRoomMessage(ctx context.Context, slug string, req SendRoomMessageRequest) error {
	g.logger().Printf("gateway: room message %s -> %s [no backend configured]", req.Sender, slug)
	return nil
}
