// Package sms sends text messages through an HTTP bulk SMS gateway.
package sms

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/outlet-commerce/internal/domain/notification"
)

var _ notification.SMSSender = (*Client)(nil)

// Config holds gateway settings.
type Config struct {
	BaseURL  string
	APIKey   string
	SenderID string
}

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "sms gateway: status " + http.StatusText(e.Code) + ": " + e.Body
}

// Client is an SMS gateway client.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. A nil base client gets an instrumented default.
func New(cfg Config, base *http.Client) *Client {
	if base == nil {
		base = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{cfg: cfg, http: base}
}

// SendSMS implements notification.SMSSender.
func (c *Client) SendSMS(ctx context.Context, phone, text string) error {
	if phone == "" {
		return errors.New("empty phone number")
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("api_key")
	e.Str(c.cfg.APIKey)
	e.FieldStart("senderid")
	e.Str(c.cfg.SenderID)
	e.FieldStart("number")
	e.Str(phone)
	e.FieldStart("message")
	e.Str(text)
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send sms")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
