// Package browsertest provides an in-memory browser.Page backed by goquery
// documents, for driving scraper components without Chromium.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/wait"
)

const pollInterval = 5 * time.Millisecond

// ClickHandler mutates the current document in response to a click on a
// node matching the selector it was registered for.
type ClickHandler func(doc *goquery.Document, target *goquery.Selection)

// EvaluateFunc answers script evaluations not handled by the page itself.
type EvaluateFunc func(expression string, args ...any) (any, error)

// Page is a fake browser tab. Routes map absolute URLs to HTML.
type Page struct {
	mu       sync.Mutex
	routes   map[string]string
	url      string
	doc      *goquery.Document
	handlers []registered
	hovers   []registered
	closed   bool

	// GotoErrors makes navigation to the given URL fail.
	GotoErrors map[string]error
	// NativeClickErrors makes native clicks on matching elements fail so the
	// scripted fallback path is exercised.
	NativeClickErrors map[string]error
	Evaluator         EvaluateFunc

	Visits      []string
	Screenshots []string
	Clicks      []string
	Hovers      []string
	Viewport    [2]int
}

type registered struct {
	selector string
	handler  ClickHandler
}

// NewPage returns a page that can navigate to any URL in routes.
func NewPage(routes map[string]string) *Page {
	if routes == nil {
		routes = map[string]string{}
	}
	return &Page{
		routes:            routes,
		GotoErrors:        map[string]error{},
		NativeClickErrors: map[string]error{},
	}
}

// SetRoute adds or replaces the HTML served for url.
func (p *Page) SetRoute(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[url] = html
}

// OnClick registers handler for clicks on nodes matching selector.
func (p *Page) OnClick(selector string, handler ClickHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, registered{selector: selector, handler: handler})
}

// OnHover registers handler for pointer moves onto nodes matching selector.
func (p *Page) OnHover(selector string, handler ClickHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hovers = append(p.hovers, registered{selector: selector, handler: handler})
}

// Load replaces the current document without recording a visit.
func (p *Page) Load(url, html string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(url, html)
}

func (p *Page) load(url, html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse page %s: %w", url, err)
	}
	p.url = url
	p.doc = doc
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// VisitCount returns how many times url was navigated to.
func (p *Page) VisitCount(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.Visits {
		if v == url {
			n++
		}
	}
	return n
}

func (p *Page) Goto(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Visits = append(p.Visits, url)
	if err := p.GotoErrors[url]; err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	html, ok := p.routes[url]
	if !ok {
		return fmt.Errorf("failed to navigate to %s: no route", url)
	}
	return p.load(url, html)
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", nil
	}
	return goquery.OuterHtml(p.doc.Selection)
}

func (p *Page) Evaluate(expression string, args ...any) (any, error) {
	if strings.Contains(expression, "document.readyState") {
		return "complete", nil
	}
	if p.Evaluator != nil {
		return p.Evaluator(expression, args...)
	}
	return nil, nil
}

func (p *Page) WaitForSelector(selector string, state browser.WaitState, timeout time.Duration) (browser.Element, error) {
	var found browser.Element
	err := wait.Until(context.Background(), timeout, pollInterval, func() (bool, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.doc == nil {
			return false, nil
		}

		matches := p.doc.Find(selector)
		switch state {
		case browser.StateHidden:
			visible := false
			matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
				visible = isVisible(s)
				return !visible
			})
			return !visible, nil
		case browser.StateVisible:
			var hit *goquery.Selection
			matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if isVisible(s) {
					hit = s
					return false
				}
				return true
			})
			if hit == nil {
				return false, nil
			}
			found = &Element{page: p, sel: hit}
			return true, nil
		default:
			if matches.Length() == 0 {
				return false, nil
			}
			found = &Element{page: p, sel: matches.First()}
			return true, nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", selector, err)
	}
	return found, nil
}

func (p *Page) QuerySelector(selector string) (browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, fmt.Errorf("%s: %w", selector, browser.ErrElementNotFound)
	}
	return p.first(p.doc.Selection, selector)
}

func (p *Page) QuerySelectorAll(selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, nil
	}
	return p.all(p.doc.Selection, selector), nil
}

func (p *Page) Screenshot(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Screenshots = append(p.Screenshots, path)
	return os.WriteFile(path, []byte("\x89PNG"), 0o644)
}

func (p *Page) SetViewportSize(width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Viewport = [2]int{width, height}
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) first(root *goquery.Selection, selector string) (browser.Element, error) {
	sel := root.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", selector, browser.ErrElementNotFound)
	}
	return &Element{page: p, sel: sel.First()}, nil
}

func (p *Page) all(root *goquery.Selection, selector string) []browser.Element {
	var out []browser.Element
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{page: p, sel: s})
	})
	return out
}

// click runs the handlers registered for target. Anchors without a handler
// navigate to their href.
func (p *Page) click(target *goquery.Selection) error {
	p.Clicks = append(p.Clicks, describe(target))

	handled := false
	for _, r := range p.handlers {
		if target.Is(r.selector) {
			r.handler(p.doc, target)
			handled = true
		}
	}
	if handled {
		return nil
	}

	if goquery.NodeName(target) == "a" {
		if href, ok := target.Attr("href"); ok && href != "" {
			url := p.resolve(href)
			p.Visits = append(p.Visits, url)
			if html, ok := p.routes[url]; ok {
				return p.load(url, html)
			}
			return fmt.Errorf("failed to navigate to %s: no route", url)
		}
	}
	return nil
}

func (p *Page) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := p.url
	if i := strings.Index(base, "://"); i >= 0 {
		if j := strings.Index(base[i+3:], "/"); j >= 0 {
			base = base[:i+3+j]
		}
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}

func describe(s *goquery.Selection) string {
	name := goquery.NodeName(s)
	if id, ok := s.Attr("id"); ok {
		return name + "#" + id
	}
	for _, attr := range []string{"data-testid", "data-auto-id"} {
		if v, ok := s.Attr(attr); ok {
			return fmt.Sprintf("%s[%s=%q]", name, attr, v)
		}
	}
	return name
}

func isVisible(s *goquery.Selection) bool {
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style, _ := n.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

// ErrNotVisible is returned by native clicks and hovers on hidden elements.
var ErrNotVisible = errors.New("element is not visible")

// Element is a fake handle over a single goquery node.
type Element struct {
	page *Page
	sel  *goquery.Selection
}

func (e *Element) GetAttribute(name string) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e *Element) TextContent() (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.sel.Text(), nil
}

func (e *Element) InnerText() (string, error) {
	return e.TextContent()
}

func (e *Element) ScriptText() (string, error) {
	return e.TextContent()
}

func (e *Element) InnerHTML() (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.sel.Html()
}

func (e *Element) QuerySelector(selector string) (browser.Element, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.page.first(e.sel, selector)
}

func (e *Element) QuerySelectorAll(selector string) ([]browser.Element, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.page.all(e.sel, selector), nil
}

func (e *Element) Click(timeout time.Duration) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	for selector, err := range e.page.NativeClickErrors {
		if e.sel.Is(selector) {
			return err
		}
	}
	if !isVisible(e.sel) {
		return fmt.Errorf("%w: %s", ErrNotVisible, describe(e.sel))
	}
	return e.page.click(e.sel)
}

func (e *Element) ScriptClick() error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.page.click(e.sel)
}

func (e *Element) ScrollIntoView(string) error {
	return nil
}

func (e *Element) IsVisible() (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return isVisible(e.sel), nil
}

func (e *Element) Hover(time.Duration) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if !isVisible(e.sel) {
		return fmt.Errorf("%w: %s", ErrNotVisible, describe(e.sel))
	}
	e.page.Hovers = append(e.page.Hovers, describe(e.sel))
	for _, r := range e.page.hovers {
		if e.sel.Is(r.selector) {
			r.handler(e.page.doc, e.sel)
		}
	}
	return nil
}

var (
	_ browser.Page    = (*Page)(nil)
	_ browser.Element = (*Element)(nil)
)
