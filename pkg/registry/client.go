package registry

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ukcas/accreditation-api/pkg/config"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

// Client talks to the national accreditation registry mirror. Every call
// carries the service-level API key; this credential is orthogonal to the
// per-user bearer token used inside the API itself.
type Client struct {
	http    *resty.Client
	enabled bool
	logger  *zap.Logger
}

// StatusNotification is the payload pushed after a certificate transition.
type StatusNotification struct {
	CertificateID string `json:"certificate_id"`
	Status        string `json:"status"`
	InstituteCode string `json:"institute_code"`
}

// New constructs a registry client from configuration.
func New(cfg config.RegistryConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("X-API-Key", cfg.APIKey).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, enabled: cfg.Enabled && cfg.BaseURL != "", logger: logger}
}

// Enabled reports whether registry notifications are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// NotifyStatus records a certificate status change with the registry and
// returns its confirmation message. The registry's status endpoint is
// known to emit concatenated JSON objects in a single body; the response
// is normalized before it reaches callers.
func (c *Client) NotifyStatus(ctx context.Context, n StatusNotification) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(n).
		Post("/v1/certificates/status")
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "registry status notification failed")
	}
	if resp.IsError() {
		return "", appErrors.Wrap(
			fmt.Errorf("registry responded %d: %s", resp.StatusCode(), resp.String()),
			appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "registry rejected status notification")
	}

	message, err := NormalizeConfirmation(resp.Body())
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "registry confirmation unreadable")
	}
	return message, nil
}
