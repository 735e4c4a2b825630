// Package scraper holds the network-facing stages of a harvest run:
// identifier discovery, record fetching and asset downloads.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-harvest-models/config"
)

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = ErrStatus{StatusCode: statusCode}
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		return wrapped
	}

	return err
}

// backoff doubles cfg.RetryBackoff per attempt, capped at RetryBackoffMax.
func backoff(cfg config.DownloadConfig, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// expandTemplate substitutes {key} placeholders in tmpl and resolves the
// result against origin. Values are path-escaped before the query string and
// query-escaped after it.
func expandTemplate(origin, tmpl string, vars map[string]string) (string, error) {
	pathPart, queryPart, hasQuery := strings.Cut(tmpl, "?")
	for k, v := range vars {
		pathPart = strings.ReplaceAll(pathPart, "{"+k+"}", url.PathEscape(v))
		queryPart = strings.ReplaceAll(queryPart, "{"+k+"}", url.QueryEscape(v))
	}
	expanded := pathPart
	if hasQuery {
		expanded += "?" + queryPart
	}

	ref, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", expanded, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(origin)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("relative endpoint %q needs a page origin", tmpl)
	}
	return base.ResolveReference(ref).String(), nil
}
