package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/conf"
)

const maxPageBytes = 8 << 20

// Subtrees dropped before extraction.
var unwantedTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Header: true, atom.Footer: true, atom.Nav: true,
	atom.Aside: true, atom.Form: true, atom.Input: true, atom.Button: true, atom.Select: true,
	atom.Textarea: true, atom.Iframe: true, atom.Img: true, atom.Video: true, atom.Audio: true,
	atom.Canvas: true, atom.Svg: true, atom.Map: true, atom.Object: true, atom.Embed: true,
	atom.Applet: true, atom.Frame: true, atom.Frameset: true, atom.Noframes: true, atom.Base: true,
	atom.Link: true, atom.Meta: true,
}

// Elements whose text is collected.
var extractTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.P: true, atom.Li: true, atom.Div: true, atom.A: true, atom.Span: true,
}

// htmlSource returns the raw (rendered) HTML of a URL
type htmlSource interface {
	HTML(ctx context.Context, url string) (string, error)
	Close() error
}

// PageRepo renders pages and reduces them to text
type PageRepo struct {
	source htmlSource
	logger *zap.Logger
}

var _ repo.PageRepo = (*PageRepo)(nil)

// NewPageRepo creates the page renderer selected by cfg.Renderer ("browser" or "http")
func NewPageRepo(cfg conf.PageConfig, logger *zap.Logger) *PageRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("page")

	var src htmlSource
	switch cfg.Renderer {
	case "http":
		src = newHTTPSource(cfg.Timeout)
	default:
		src = &browserSource{controlURL: cfg.ControlURL, bin: cfg.BrowserBin, timeout: cfg.Timeout, logger: logger}
	}
	return &PageRepo{source: src, logger: logger}
}

// Fetch renders url and returns the extracted text
func (r *PageRepo) Fetch(ctx context.Context, url string) (string, error) {
	raw, err := r.source.HTML(ctx, url)
	if err != nil {
		return "", &domain.FetchError{Source: "page", Target: url, Err: err}
	}
	text, err := ExtractText(strings.NewReader(raw))
	if err != nil {
		return "", &domain.FetchError{Source: "page", Target: url, Err: err}
	}
	r.logger.Debug("page fetched", zap.String("url", url), zap.Int("html_bytes", len(raw)), zap.Int("text_chars", len(text)))
	return text, nil
}

// Close releases the browser, if one was started
func (r *PageRepo) Close() error {
	return r.source.Close()
}

// ExtractText drops unwanted subtrees and joins the text of the outermost
// extractable elements with spaces. Link text is followed by " (href)".
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var parts []string
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.ElementNode:
				if unwantedTags[c.DataAtom] {
					continue
				}
				collect(c)
			case html.TextNode:
				s := strings.TrimSpace(c.Data)
				if s == "" {
					continue
				}
				if n.DataAtom == atom.A {
					if href := attr(n, "href"); href != "" {
						s = s + " (" + href + ")"
					}
				}
				parts = append(parts, s)
			}
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if unwantedTags[n.DataAtom] {
				return
			}
			if extractTags[n.DataAtom] {
				collect(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(parts, " "), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// httpSource fetches static HTML without running scripts
type httpSource struct {
	client *http.Client
}

func newHTTPSource(timeout time.Duration) *httpSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpSource{client: &http.Client{Timeout: timeout}}
}

func (s *httpSource) HTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; hobojuki/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *httpSource) Close() error { return nil }

// browserSource renders pages in headless Chrome. The browser is started on first use.
type browserSource struct {
	controlURL string
	bin        string
	timeout    time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

func (s *browserSource) connect() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	controlURL := s.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if s.bin != "" {
			l = l.Bin(s.bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.logger.Info("browser connected")
	s.browser = browser
	return browser, nil
}

func (s *browserSource) HTML(ctx context.Context, url string) (string, error) {
	browser, err := s.connect()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	timeout := s.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := page.Context(ctx).Timeout(timeout)
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}
	return p.HTML()
}

func (s *browserSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}
