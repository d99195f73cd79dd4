// Package wabridgehttp talks to an upstream WhatsApp bridge over HTTP.
// The dispatch worker owns retry policy, so this client never retries;
// it maps upstream failures onto wabridge error codes and returns.
package wabridgehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
)

// DefaultTimeout bounds one upstream call. The bridge owns its timeout
// policy; a hanging call blocks only the owning unit's queue.
const DefaultTimeout = 60 * time.Second

const userAgent = "whatsapp-microservice/1.0"

// Client implements wabridge.Bridge against a remote bridge API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ wabridge.Bridge = (*Client)(nil)

// New creates a bridge client. A nil httpClient gets a default with
// DefaultTimeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// statusResponse mirrors GET /sessions/{unit}/status.
type statusResponse struct {
	Ready bool `json:"ready"`
}

// sendPayload mirrors POST /sessions/{unit}/messages.
type sendPayload struct {
	Recipient string              `json:"recipient"`
	Text      string              `json:"text,omitempty"`
	Media     *message.Attachment `json:"media,omitempty"`
	Document  *message.Attachment `json:"document,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// IsReady asks the upstream whether the unit's session can send.
func (c *Client) IsReady(ctx context.Context, unitID kernel.UnitID) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%s/status", unitID), nil)
	if err != nil {
		return false, err
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return false, wabridge.ErrRegistry.NewWithCause(wabridge.ErrTransport, err).
			WithDetail("reason", "malformed status response")
	}
	return status.Ready, nil
}

// Send delivers classified content to one recipient. Media and document
// are independent upstream sends within this one attempt, media first;
// the returned MessageID is the trailing part's id. Readiness and
// recipient validity are verified upstream and come back as not_ready
// or invalid_recipient errors.
func (c *Client) Send(ctx context.Context, unitID kernel.UnitID, recipient string, content message.Content) (*wabridge.Outcome, error) {
	parts := buildParts(recipient, content)
	if len(parts) == 0 {
		return nil, wabridge.ErrRegistry.New(wabridge.ErrTransport).
			WithDetail("reason", "content has nothing to send")
	}

	endpoint := fmt.Sprintf("/sessions/%s/messages", unitID)
	var last sendResponse
	for _, part := range parts {
		body, err := c.do(ctx, http.MethodPost, endpoint, part)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &last); err != nil {
			return nil, wabridge.ErrRegistry.NewWithCause(wabridge.ErrTransport, err).
				WithDetail("reason", "malformed send response")
		}
	}
	return &wabridge.Outcome{MessageID: last.MessageID}, nil
}

// buildParts splits classified content into sequential upstream sends.
func buildParts(recipient string, content message.Content) []sendPayload {
	if content.HasText {
		return []sendPayload{{Recipient: recipient, Text: content.Text}}
	}

	var parts []sendPayload
	if content.Media != nil {
		parts = append(parts, sendPayload{Recipient: recipient, Media: content.Media})
	}
	if content.Document != nil {
		parts = append(parts, sendPayload{Recipient: recipient, Document: content.Document})
	}
	return parts
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, wabridge.ErrRegistry.NewWithCause(wabridge.ErrTransport, err).
				WithDetail("reason", "failed to marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, wabridge.ErrRegistry.NewWithCause(wabridge.ErrTransport, err).
			WithDetail("url", url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wabridge.ErrRegistry.NewWithCause(wabridge.ErrTransport, err).
			WithDetail("url", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wabridge.ErrRegistry.NewWithCause(wabridge.ErrTransport, err).
			WithDetail("reason", "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapError(resp.StatusCode, body)
	}
	return body, nil
}

// mapError turns an upstream error response into a wabridge code. The
// body's error.code wins; otherwise the HTTP status decides, and
// anything unrecognized stays transient so the worker keeps retrying.
func mapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	// The body may be proxy junk; status mapping still applies.
	_ = json.Unmarshal(body, &errResp)

	var code *errx.ErrorCode
	switch errResp.Error.Code {
	case "not_registered":
		code = wabridge.ErrNotRegistered
	case "invalid_recipient":
		code = wabridge.ErrInvalidRecipient
	case "not_ready":
		code = wabridge.ErrNotReady
	default:
		if statusCode == http.StatusServiceUnavailable {
			code = wabridge.ErrNotReady
		} else {
			code = wabridge.ErrTransport
		}
	}

	err := wabridge.ErrRegistry.New(code).WithDetail("status", statusCode)
	if errResp.Error.Message != "" {
		err = err.WithDetail("upstream", errResp.Error.Message)
	}
	return err
}
