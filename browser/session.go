// Package browser owns headless browser processes. Every job acquires its own
// process and releases it when done; processes are never shared across jobs.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/kjd1374/shopping-sub000/config"
	"github.com/kjd1374/shopping-sub000/models"
)

// Profile selects the launch argument set.
type Profile string

const (
	// ProfileStandard keeps Chrome's sandbox enabled.
	ProfileStandard Profile = "standard"

	// ProfileRestricted is for containers and serverless runtimes where the
	// sandbox cannot start. It drops privileges-dependent features.
	ProfileRestricted Profile = "restricted"
)

// ParseProfile maps a config string to a Profile, defaulting to standard.
func ParseProfile(s string) Profile {
	if strings.EqualFold(strings.TrimSpace(s), string(ProfileRestricted)) {
		return ProfileRestricted
	}
	return ProfileStandard
}

// Handle is a live browser owned by one job.
type Handle interface {
	// ID identifies the session in logs.
	ID() string

	// NewTab opens a blank tab. The caller must close it.
	NewTab(ctx context.Context) (*rod.Page, error)
}

// Acquirer hands out and reclaims browser sessions.
type Acquirer interface {
	Acquire(ctx context.Context, profile Profile) (Handle, error)
	Release(h Handle)
}

// Manager launches one browser process per Acquire call.
// It is safe for concurrent use.
type Manager struct {
	cfg  config.BrowserConfig
	live atomic.Int32
	seq  atomic.Int64
}

// NewManager creates a Manager. No process is started until Acquire.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Live returns the number of browser processes currently held by jobs.
func (m *Manager) Live() int {
	return int(m.live.Load())
}

// Session is the Handle implementation backed by a real Chrome process.
type Session struct {
	id       string
	browser  *rod.Browser
	launcher *launcher.Launcher
	released atomic.Bool
}

// ID implements Handle.
func (s *Session) ID() string { return s.id }

// NewTab implements Handle. The tab is not bound to ctx so it can still be
// closed once ctx is done; callers bind deadlines with page.Context.
func (s *Session) NewTab(ctx context.Context) (*rod.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "context done before tab open", err)
	}
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to open tab", err)
	}
	return page, nil
}

// Attach wraps an already connected browser. Release closes it but has no
// process to kill.
func Attach(id string, b *rod.Browser) *Session {
	return &Session{id: id, browser: b}
}

// Acquire launches a fresh browser and connects to it.
func (m *Manager) Acquire(ctx context.Context, profile Profile) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "context done before launch", err)
	}

	launchCtx, cancel := context.WithTimeout(ctx, m.launchTimeout())
	defer cancel()

	l := m.newLauncher(profile).Context(launchCtx)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserLaunch,
			"failed to launch browser",
			err,
		)
	}

	fail := func(err error) (Handle, error) {
		l.Kill()
		l.Cleanup()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserLaunch,
			"failed to connect to browser",
			err,
		)
	}

	// Only the dial is bound to launchCtx; the session outlives it.
	client, err := cdp.StartWithURL(launchCtx, controlURL, nil)
	if err != nil {
		return fail(err)
	}
	b := rod.New().Client(client)
	if err := b.Connect(); err != nil {
		return fail(err)
	}

	s := &Session{
		id:       fmt.Sprintf("browser-%d", m.seq.Add(1)),
		browser:  b,
		launcher: l,
	}
	m.live.Add(1)
	slog.Debug("browser acquired", "session", s.id, "profile", profile, "pid", l.PID())
	return s, nil
}

// launchTimeout bounds process start plus the CDP dial.
func (m *Manager) launchTimeout() time.Duration {
	if m.cfg.LaunchTimeout > 0 {
		return m.cfg.LaunchTimeout
	}
	return 30 * time.Second
}

// Release closes the browser and kills its process. It is safe to call more
// than once; only the first call has an effect.
func (m *Manager) Release(h Handle) {
	s, ok := h.(*Session)
	if !ok || s == nil {
		return
	}
	if !s.released.CompareAndSwap(false, true) {
		return
	}

	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed, killing process", "session", s.id, "error", err)
	}
	if s.launcher == nil {
		return
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	m.live.Add(-1)
	slog.Debug("browser released", "session", s.id)
}

// newLauncher builds the launch arguments for a profile.
func (m *Manager) newLauncher(profile Profile) *launcher.Launcher {
	l := launcher.New().
		Headless(m.cfg.Headless)

	if m.cfg.BrowserBin != "" {
		l = l.Bin(m.cfg.BrowserBin)
	}
	if m.cfg.DefaultProxy != "" {
		l = l.Proxy(m.cfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "ko-KR")

	// ── Reduced-privilege set ────────────────────────────────────────
	if profile == ProfileRestricted {
		l = l.NoSandbox(true).Leakless(false)
		l.Set(flags.Flag("disable-setuid-sandbox"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-gpu"))
		l.Set(flags.Flag("no-zygote"))
	}

	return l
}

// WithSession acquires a browser, runs fn and releases the browser on every
// exit path, including panics inside fn.
func WithSession(ctx context.Context, a Acquirer, profile Profile, fn func(Handle) error) error {
	h, err := a.Acquire(ctx, profile)
	if err != nil {
		return err
	}
	defer a.Release(h)
	return fn(h)
}
