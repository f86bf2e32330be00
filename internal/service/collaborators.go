package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"superfilm-backend/internal/model"
)

// HTTPImageStore talks to the object-storage collaborator over HTTP. The
// service only ever deletes through it (uploads happen at the edge, which
// hands us the resulting reference URL).
type HTTPImageStore struct {
	baseURL string
	client  *http.Client
}

func NewHTTPImageStore(baseURL string) *HTTPImageStore {
	return &HTTPImageStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Delete removes a stored image by its reference URL. Callers treat failure
// as best effort; an unconfigured store accepts everything.
func (s *HTTPImageStore) Delete(ctx context.Context, url string) error {
	if s.baseURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("image delete: %w", model.ErrTransient)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("image delete: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// WebhookReportSink forwards message reports to the moderation backend's
// webhook. Fire-and-forget: reporting must never block or fail the caller's
// request path.
type WebhookReportSink struct {
	webhookURL string
	client     *http.Client
}

func NewWebhookReportSink(webhookURL string) *WebhookReportSink {
	return &WebhookReportSink{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type reportPayload struct {
	MessageID  int64     `json:"message_id"`
	ReporterID string    `json:"reporter_id"`
	Reason     string    `json:"reason"`
	ReportedAt time.Time `json:"reported_at"`
}

func (s *WebhookReportSink) Report(ctx context.Context, messageID int64, reporterID, reason string) error {
	if s.webhookURL == "" {
		return nil
	}
	body, err := json.Marshal(reportPayload{
		MessageID:  messageID,
		ReporterID: reporterID,
		Reason:     reason,
		ReportedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	go func() {
		req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			log.Printf("[report] webhook send failed: %v", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			log.Printf("[report] webhook returned %d", resp.StatusCode)
		}
	}()
	return nil
}
