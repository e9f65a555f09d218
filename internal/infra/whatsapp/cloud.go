package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"notivio/internal/domain/notification"
)

var _ notification.Transport = (*CloudTransport)(nil)

// CloudTransport sends WhatsApp messages through the Meta Cloud API.
type CloudTransport struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

// NewCloudTransport creates a new WhatsApp Cloud API transport.
func NewCloudTransport(accessToken, phoneNumberID string) *CloudTransport {
	return &CloudTransport{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       "https://graph.facebook.com/v19.0",
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Channel returns the WhatsApp channel identifier.
func (t *CloudTransport) Channel() notification.Channel {
	return notification.ChannelWhatsApp
}

// Send delivers a WhatsApp message and returns the provider message ID.
// Messages with an attachment go out as a document with the body as caption,
// plain messages as text.
func (t *CloudTransport) Send(ctx context.Context, msg *notification.OutboundMessage) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                msg.To,
	}

	if msg.AttachmentURL != "" {
		payload["type"] = "document"
		payload["document"] = map[string]string{
			"link":    msg.AttachmentURL,
			"caption": msg.Body,
		}
	} else {
		payload["type"] = "text"
		payload["text"] = map[string]any{
			"preview_url": false,
			"body":        msg.Body,
		}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", t.baseURL, t.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.accessToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		detail := errResp.Error.Message
		if detail == "" {
			detail = fmt.Sprintf("whatsapp API error: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("whatsapp: %s", detail)
	}

	var successResp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return "", fmt.Errorf("parsing whatsapp response: %w", err)
	}
	if len(successResp.Messages) == 0 {
		return "", fmt.Errorf("whatsapp: response carried no message id")
	}

	return successResp.Messages[0].ID, nil
}
