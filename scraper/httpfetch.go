package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kjd1374/shopping-sub000/config"
	"github.com/kjd1374/shopping-sub000/models"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// chromeH1Spec is a Chrome ClientHello with ALPN locked to http/1.1, since
// http.Transport cannot speak h2 over a utls connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

const maxStaticBody = 10 << 20

// HTTPFetcher retrieves pages without a browser, presenting a Chrome TLS
// fingerprint. Server-rendered product pages usually come back complete.
type HTTPFetcher struct {
	cfg    config.ScraperConfig
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. proxy may be empty.
func NewHTTPFetcher(cfg config.ScraperConfig, proxy string) *HTTPFetcher {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &HTTPFetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// FetchStatic implements StaticFetcher. The body is decoded to UTF-8 using
// the declared or sniffed charset, since some Korean shops still serve EUC-KR.
func (f *HTTPFetcher) FetchStatic(ctx context.Context, rawURL string) (*models.RenderedPage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid url: "+rawURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	if ref := refererFor(rawURL, ""); ref != "" {
		req.Header.Set("Referer", ref)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, categorizeError(err, "static fetch of "+rawURL+" failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, models.NewScrapeError(
			models.ErrCodeNavigation,
			fmt.Sprintf("HTTP %d for %s", resp.StatusCode, rawURL),
			nil,
		)
	}
	ct := resp.Header.Get("Content-Type")
	if !isHTMLContentType(ct) {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "non-html response ("+ct+")", nil)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxStaticBody), ct)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "undecodable response body", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, categorizeError(err, "failed to read response body")
	}

	if marker, hit := DetectChallenge(string(body)); hit {
		return nil, models.NewScrapeError(
			models.ErrCodeChallenge,
			"anti-bot challenge page detected ("+marker+")",
			nil,
		)
	}

	return &models.RenderedPage{
		HTML:       string(body),
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}, nil
}

// dialTLSChrome opens a TLS connection with the Chrome h1 fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpfetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// isHTMLContentType returns true if the content-type header looks like HTML.
// A missing header is accepted and left to the charset sniffer.
func isHTMLContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

var emptyRoots = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<div id="__nuxt"></div>`,
}

// NeedsBrowser reports whether statically fetched HTML looks like a client
// rendered shell that only a browser can fill in.
func NeedsBrowser(body string) bool {
	visible := visibleText(body)
	if len(visible) < 200 {
		return true
	}

	lower := strings.ToLower(body)
	for _, root := range emptyRoots {
		if strings.Contains(lower, root) {
			return true
		}
	}
	if reNoscript.MatchString(lower) {
		return true
	}

	scriptCount := strings.Count(lower, "<script")
	return scriptCount > 10 && len(visible) < 500
}

// visibleText concatenates <body> text outside script and style elements.
// Used for heuristics only.
func visibleText(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var buf bytes.Buffer
	inBody := false
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript", "template":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "template":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := bytes.TrimSpace(tokenizer.Text()); len(text) > 0 {
					buf.Write(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
