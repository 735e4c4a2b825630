package page

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// BrowserSource reads the page from a real browser over CDP. With a
// ControlURL it attaches to the user's running browser and looks for an open
// tab on URL before navigating a new one; without it a headless browser is
// launched.
type BrowserSource struct {
	URL           string
	ControlURL    string
	Headless      bool
	Stealth       bool
	SettleTimeout time.Duration
	Globals       []string
}

// Capture connects, reads the DOM, session storage and globals, and disconnects.
func (b BrowserSource) Capture(ctx context.Context) (*Snapshot, error) {
	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	controlURL := b.ControlURL
	launched := controlURL == ""
	if launched {
		l := launcher.New().Headless(b.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		defer l.Kill()
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(connCtx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	// An attached browser belongs to the user; only the connection is dropped.
	if launched {
		defer func() { _ = browser.Close() }()
	}

	p, owned, err := b.openPage(browser)
	if err != nil {
		return nil, err
	}
	if owned {
		defer func() { _ = p.Close() }()
	}

	settle := b.SettleTimeout
	if settle <= 0 {
		settle = 10 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()
	if err := p.Context(waitCtx).WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("page did not settle, using current DOM", slog.Any("error", err))
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}

	snap := &Snapshot{
		URL:            evalString(p, `() => window.location.href`),
		HTML:           html,
		SessionStorage: map[string]string{},
		Globals:        map[string]string{},
	}
	if snap.URL == "" {
		snap.URL = b.URL
	}

	if raw, ok := evalJSON(p, "Object.fromEntries(Object.entries(window.sessionStorage))"); ok {
		if err := json.Unmarshal([]byte(raw), &snap.SessionStorage); err != nil {
			slog.Warn("session storage unreadable", slog.Any("error", err))
		}
	}
	for _, expr := range b.Globals {
		if raw, ok := evalJSON(p, expr); ok {
			snap.Globals[expr] = raw
		}
	}
	return snap, nil
}

func (b BrowserSource) openPage(browser *rod.Browser) (*rod.Page, bool, error) {
	if b.ControlURL != "" && b.URL != "" {
		pages, err := browser.Pages()
		if err == nil {
			if p, findErr := pages.FindByURL(regexp.QuoteMeta(b.URL)); findErr == nil {
				return p, false, nil
			}
		}
	}
	if b.URL == "" {
		return nil, false, fmt.Errorf("no open tab to attach to and no page URL given")
	}

	p, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, false, fmt.Errorf("create page: %w", err)
	}
	if b.Stealth {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", slog.Any("error", err))
		}
	}
	if err := p.Navigate(b.URL); err != nil {
		_ = p.Close()
		return nil, false, fmt.Errorf("navigate to %s: %w", b.URL, err)
	}
	if err := p.WaitLoad(); err != nil {
		slog.Debug("page load event not observed", slog.Any("error", err))
	}
	return p, true, nil
}

func evalString(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// evalJSON evaluates expr in the page and returns its JSON encoding.
func evalJSON(p *rod.Page, expr string) (string, bool) {
	js := fmt.Sprintf(`() => {
		try {
			const v = (%s);
			return v === undefined || v === null ? null : JSON.stringify(v);
		} catch (e) {
			return null;
		}
	}`, expr)
	res, err := p.Eval(js)
	if err != nil {
		return "", false
	}
	return jsonText(res.Value)
}

func jsonText(v gson.JSON) (string, bool) {
	if v.Nil() {
		return "", false
	}
	s := v.Str()
	return s, s != ""
}
