package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/proteus/scrapecore/pkg/identity"
)

// BrowserConfig tunes the headless renderer.
type BrowserConfig struct {
	NavTimeoutMS int
	ExecPath     string
}

// Fingerprint is the browser-context emulation profile: user agent,
// viewport, locale, timezone, geolocation, color scheme, device scale and
// mobile/touch flags, extra headers.
type Fingerprint struct {
	UserAgent      string
	ViewportWidth  int64
	ViewportHeight int64
	Locale         string
	Timezone       string
	Latitude       float64
	Longitude      float64
	DeviceScale    float64
	Mobile         bool
	Touch          bool
	ExtraHeaders   map[string]string
}

// PageRequest describes one page navigation within a browser session.
type PageRequest struct {
	URL             string
	WaitForSelector string
	FixedWait       time.Duration
	Humanize        bool
	ScrollSteps     int
}

// Snapshot is one page's captured render result.
type Snapshot struct {
	HTML    string
	URL     string
	Status  int
	Headers map[string]string
}

// SessionResult is everything a browser session produced across its pages.
type SessionResult struct {
	Snapshots    []Snapshot
	Cookies      []identity.Cookie
	StorageState string
	Screenshot   []byte
	HAR          []HAREntry
}

// HAREntry is a minimal HTTP Archive request/response pair, enough to
// reconstruct a simplified trace without pulling in a full HAR library
// (none appears anywhere in the pack).
type HAREntry struct {
	URL      string
	Method   string
	Status   int
	MimeType string
}

// BrowserRunner renders pages with a real headless browser via chromedp.
type BrowserRunner struct {
	cfg BrowserConfig
}

func NewBrowserRunner(cfg BrowserConfig) *BrowserRunner {
	return &BrowserRunner{cfg: cfg}
}

// Render launches one browser context, navigates every page in pages in
// order, and captures cookies/storage state/screenshot/HAR on exit.
func (r *BrowserRunner) Render(ctx context.Context, fp Fingerprint, proxyURL string, cookies []identity.Cookie, storageState string, pages []PageRequest) (*SessionResult, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if fp.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(fp.UserAgent))
	}
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	navTimeout := time.Duration(r.cfg.NavTimeoutMS) * time.Millisecond
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}

	if err := chromedp.Run(browserCtx, setupActions(fp, cookies, storageState)...); err != nil {
		return nil, fmt.Errorf("preparing browser context: %w", err)
	}

	var har []HAREntry
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			har = append(har, HAREntry{
				URL:      resp.Response.URL,
				Method:   string(resp.Type),
				Status:   int(resp.Response.Status),
				MimeType: resp.Response.MimeType,
			})
		}
	})

	result := &SessionResult{}
	for _, p := range pages {
		snap, err := r.navigateOne(browserCtx, navTimeout, p)
		if err != nil {
			return nil, err
		}
		result.Snapshots = append(result.Snapshots, *snap)
	}
	result.HAR = har

	if err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			cks, err := network.GetAllCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cks {
				result.Cookies = append(result.Cookies, identity.Cookie{
					Name:     c.Name,
					Value:    c.Value,
					Domain:   c.Domain,
					Path:     c.Path,
					Secure:   c.Secure,
					HTTPOnly: c.HTTPOnly,
				})
			}
			return nil
		}),
		chromedp.Evaluate(`JSON.stringify(window.localStorage)`, &result.StorageState),
		chromedp.FullScreenshot(&result.Screenshot, 80),
	); err != nil {
		return nil, fmt.Errorf("capturing session state: %w", err)
	}

	return result, nil
}

func setupActions(fp Fingerprint, cookies []identity.Cookie, storageState string) []chromedp.Action {
	var actions []chromedp.Action

	width, height := fp.ViewportWidth, fp.ViewportHeight
	if width == 0 {
		width = 1280
	}
	if height == 0 {
		height = 800
	}
	viewOpts := []chromedp.EmulateViewportOption{}
	if fp.DeviceScale > 0 {
		viewOpts = append(viewOpts, chromedp.EmulateScale(fp.DeviceScale))
	}
	actions = append(actions, chromedp.EmulateViewport(width, height, viewOpts...))

	if fp.Latitude != 0 || fp.Longitude != 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetGeolocationOverride().
				WithLatitude(fp.Latitude).WithLongitude(fp.Longitude).WithAccuracy(50).Do(ctx)
		}))
	}
	if len(fp.ExtraHeaders) > 0 {
		headers := network.Headers{}
		for k, v := range fp.ExtraHeaders {
			headers[k] = v
		}
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(headers).Do(ctx)
		}))
	}
	for _, c := range cookies {
		cookie := c
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).WithPath(cookie.Path).
				WithSecure(cookie.Secure).WithHTTPOnly(cookie.HTTPOnly).Do(ctx)
		}))
	}
	if storageState != "" {
		actions = append(actions, chromedp.Evaluate(
			fmt.Sprintf("window.localStorage.setItem('__restored_state__', %q)", storageState), nil))
	}

	return actions
}

func (r *BrowserRunner) navigateOne(ctx context.Context, timeout time.Duration, p PageRequest) (*Snapshot, error) {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(p.URL)}
	if p.WaitForSelector != "" {
		actions = append(actions, chromedp.WaitVisible(p.WaitForSelector, chromedp.ByQuery))
	}
	if p.FixedWait > 0 {
		actions = append(actions, chromedp.Sleep(p.FixedWait))
	}
	if p.Humanize {
		actions = append(actions, humanizeMouseActions()...)
	}
	if p.ScrollSteps > 0 {
		actions = append(actions, scrollActions(p.ScrollSteps)...)
	}

	var html, currentURL string
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&currentURL),
	)

	if err := chromedp.Run(navCtx, actions...); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", p.URL, err)
	}

	return &Snapshot{HTML: html, URL: currentURL, Status: 200, Headers: map[string]string{}}, nil
}

// scrollActions scrolls the viewport down in steps of equal fractions of
// the page height, pausing briefly between each to let lazy content load.
func scrollActions(steps int) []chromedp.Action {
	var actions []chromedp.Action
	for i := 1; i <= steps; i++ {
		fraction := float64(i) / float64(steps)
		actions = append(actions,
			chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, document.body.scrollHeight * %f)", fraction), nil),
			chromedp.Sleep(300*time.Millisecond),
		)
	}
	return actions
}

// humanizeMouseActions moves the mouse along a jittered cubic Bézier path
// between two pseudo-random points, approximating human pointer movement.
func humanizeMouseActions() []chromedp.Action {
	x0, y0 := 50.0, 50.0
	x3, y3 := 400+rand.Float64()*200, 300+rand.Float64()*200
	x1, y1 := x0+rand.Float64()*100, y0+rand.Float64()*200
	x2, y2 := x3-rand.Float64()*100, y3-rand.Float64()*200

	const steps = 12
	var actions []chromedp.Action
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		x, y := cubicBezier(x0, x1, x2, x3, t), cubicBezier(y0, y1, y2, y3, t)
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}))
		actions = append(actions, chromedp.Sleep(time.Duration(10+rand.Intn(30))*time.Millisecond))
	}
	return actions
}

func cubicBezier(p0, p1, p2, p3, t float64) float64 {
	u := 1 - t
	return u*u*u*p0 + 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t*p3
}
