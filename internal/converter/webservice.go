// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dmakurin/redmine-reformat/internal/httputil"
)

// maxResponseBytes bounds the converted text accepted from a service.
const maxResponseBytes = 16 << 20

type webServiceOptions struct {
	URL           string  `json:"url"`
	ContentType   string  `json:"contentType"`
	Timeout       string  `json:"timeout"`
	RatePerSecond float64 `json:"ratePerSecond"`
	Burst         int     `json:"burst"`
	MaxRetries    int     `json:"maxRetries"`
}

// WebService POSTs text to an HTTP conversion service and returns the
// response body. Requests carry the field context in X-Reformat-* headers.
type WebService struct {
	url         string
	contentType string
	maxRetries  int
	client      *http.Client
	limiter     *rate.Limiter
}

func newWebServiceFactory(client *http.Client) Factory {
	return func(opts Options) (Converter, error) {
		var o webServiceOptions
		if err := DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		u, err := url.Parse(o.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalidOptions("url must be an absolute http(s) URL, got %q", o.URL)
		}
		if o.RatePerSecond < 0 || o.Burst < 0 || o.MaxRetries < 0 {
			return nil, invalidOptions("ratePerSecond, burst and maxRetries must not be negative")
		}
		timeout, err := parseTimeout(o.Timeout)
		if err != nil {
			return nil, err
		}
		if o.ContentType == "" {
			o.ContentType = "text/plain; charset=utf-8"
		}

		limit := rate.Inf
		if o.RatePerSecond > 0 {
			limit = rate.Limit(o.RatePerSecond)
		}
		burst := max(o.Burst, 1)

		c := *client
		c.Timeout = timeout
		return &WebService{
			url:         u.String(),
			contentType: o.ContentType,
			maxRetries:  o.MaxRetries,
			client:      &c,
			limiter:     rate.NewLimiter(limit, burst),
		}, nil
	}
}

// Convert implements Converter.
func (w *WebService) Convert(ctx context.Context, text string, fc FieldContext) (string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(text))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.contentType)
	req.Header.Set("X-Reformat-Record-Type", fc.RecordType)
	req.Header.Set("X-Reformat-Record-Id", strconv.FormatInt(fc.RecordID, 10))
	req.Header.Set("X-Reformat-Field", fc.Field)
	if fc.SourceFormat != "" {
		req.Header.Set("X-Reformat-Source-Format", fc.SourceFormat)
	}
	if fc.TargetFormat != "" {
		req.Header.Set("X-Reformat-Target-Format", fc.TargetFormat)
	}

	resp, err := httputil.DoWithRetry(ctx, w.client, req, w.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256] + "..."
		}
		return "", fmt.Errorf("conversion service returned %s: %s", resp.Status, msg)
	}
	if len(body) > maxResponseBytes {
		return "", fmt.Errorf("conversion service response exceeds %d bytes", maxResponseBytes)
	}
	return string(body), nil
}
