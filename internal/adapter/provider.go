package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
)

// HTTPProvider sends through a provider's HTTP API and guards it with a
// circuit breaker. One instance serves one channel.
type HTTPProvider struct {
	name    string
	channel model.Channel
	baseURL string
	path    string
	apiKey  string
	client  *http.Client
	br      *MicroBreaker
}

func NewHTTPProvider(
	name string, channel model.Channel,
	baseURL, path, apiKey string,
	timeoutMs, failThreshold, openForMs int,
) *HTTPProvider {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPProvider{
		name:    name,
		channel: channel,
		baseURL: baseURL,
		path:    path,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *HTTPProvider) Name() string           { return p.name }
func (p *HTTPProvider) Channel() model.Channel { return p.channel }
func (p *HTTPProvider) Ready() bool            { return p.br.Ready() }

type sendPayload struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject,omitempty"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (p *HTTPProvider) Send(ctx context.Context, to string, content Content, metadata map[string]string) (string, error) {
	if !p.br.TryAcquire() {
		return "", &SendError{Kind: Transient, Reason: "provider breaker open"}
	}

	id, err := p.post(ctx, to, content, metadata)
	if err != nil {
		if Classify(err) == Transient {
			p.br.OnFailure()
		} else {
			// a bad recipient says nothing about provider health
			p.br.OnSuccess()
		}
		return "", err
	}

	p.br.OnSuccess()

	return id, nil
}

func (p *HTTPProvider) post(ctx context.Context, to string, content Content, metadata map[string]string) (string, error) {
	b, _ := json.Marshal(sendPayload{
		To:       to,
		Subject:  content.Subject,
		Body:     content.Body,
		Metadata: metadata,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(b))
	if err != nil {
		return "", &SendError{Kind: Transient, Reason: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return "", &SendError{Kind: Transient, Reason: err.Error()}
	}

	defer res.Body.Close()

	// 4xx means the recipient or payload is structurally bad; retrying
	// cannot fix it. 429 is throttling and stays retryable.
	switch {
	case res.StatusCode/100 == 2:
	case res.StatusCode == http.StatusTooManyRequests:
		return "", &SendError{Kind: Transient, Reason: fmt.Sprintf("provider=%s status=%d", p.name, res.StatusCode)}
	case res.StatusCode/100 == 4:
		return "", &SendError{Kind: Permanent, Reason: fmt.Sprintf("provider=%s status=%d", p.name, res.StatusCode)}
	default:
		return "", &SendError{Kind: Transient, Reason: fmt.Sprintf("provider=%s status=%d", p.name, res.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", &SendError{Kind: Transient, Reason: err.Error()}
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.MessageID == "" {
		// accepted but no id; synthesize nothing, let tracker match by task id
		return "", nil
	}

	return sr.MessageID, nil
}
