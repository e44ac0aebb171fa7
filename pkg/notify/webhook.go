package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
)

// Webhook POSTs alerts as JSON to a configured endpoint.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a webhook channel for the given URL
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (w *Webhook) Name() string {
	return "webhook"
}

func (w *Webhook) Send(ctx context.Context, alert *model.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return goerr.Wrap(err, "failed to encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(model.ErrTransient, err.Error(), goerr.V("url", w.url))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return goerr.New("webhook returned error status",
			goerr.V("url", w.url), goerr.V("status", resp.StatusCode))
	}
	return nil
}
