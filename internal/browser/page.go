package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/catalog-scraper/internal/wait"
	"github.com/playwright-community/playwright-go"
)

// ErrElementNotFound is returned when a selector matches nothing.
var ErrElementNotFound = errors.New("element not found")

// WaitState is the condition WaitForSelector blocks on.
type WaitState int

const (
	StateAttached WaitState = iota
	StateVisible
	StateHidden
)

// Page is the slice of a browser tab the scraper drives. Selectors are CSS.
type Page interface {
	Goto(url string) error
	URL() string
	Content() (string, error)
	Evaluate(expression string, args ...any) (any, error)
	// WaitForSelector returns wait.ErrTimeout if the state is not reached in
	// time. For StateHidden the returned element is nil.
	WaitForSelector(selector string, state WaitState, timeout time.Duration) (Element, error)
	QuerySelector(selector string) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
	Screenshot(path string) error
	SetViewportSize(width, height int) error
	Close() error
}

// Element is a handle to a node inside a Page.
type Element interface {
	GetAttribute(name string) (string, error)
	TextContent() (string, error)
	InnerText() (string, error)
	// ScriptText reads textContent through the page's script engine.
	ScriptText() (string, error)
	InnerHTML() (string, error)
	QuerySelector(selector string) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
	Click(timeout time.Duration) error
	// ScriptClick dispatches el.click() directly, bypassing hit testing.
	ScriptClick() error
	ScrollIntoView(block string) error
	IsVisible() (bool, error)
	Hover(timeout time.Duration) error
}

type pwPage struct {
	page playwright.Page
}

// WrapPage adapts a playwright page.
func WrapPage(page playwright.Page) Page {
	return &pwPage{page: page}
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", wait.ErrTimeout, err)
	}
	return err
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, mapError(err))
	}
	return nil
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Evaluate(expression string, args ...any) (any, error) {
	return p.page.Evaluate(expression, args...)
}

func (p *pwPage) WaitForSelector(selector string, state WaitState, timeout time.Duration) (Element, error) {
	var s *playwright.WaitForSelectorState
	switch state {
	case StateVisible:
		s = playwright.WaitForSelectorStateVisible
	case StateHidden:
		s = playwright.WaitForSelectorStateHidden
	default:
		s = playwright.WaitForSelectorStateAttached
	}

	handle, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   s,
		Timeout: ms(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", selector, mapError(err))
	}
	if handle == nil {
		if state == StateHidden {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return &pwElement{el: handle}, nil
}

func (p *pwPage) QuerySelector(selector string) (Element, error) {
	handle, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return &pwElement{el: handle}, nil
}

func (p *pwPage) QuerySelectorAll(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapAll(handles), nil
}

func (p *pwPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(false),
	})
	return err
}

func (p *pwPage) SetViewportSize(width, height int) error {
	return p.page.SetViewportSize(width, height)
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

type pwElement struct {
	el playwright.ElementHandle
}

func wrapAll(handles []playwright.ElementHandle) []Element {
	out := make([]Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, &pwElement{el: h})
	}
	return out
}

func (e *pwElement) GetAttribute(name string) (string, error) {
	return e.el.GetAttribute(name)
}

func (e *pwElement) TextContent() (string, error) {
	return e.el.TextContent()
}

func (e *pwElement) InnerText() (string, error) {
	return e.el.InnerText()
}

func (e *pwElement) ScriptText() (string, error) {
	v, err := e.el.Evaluate("el => el.textContent")
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (e *pwElement) InnerHTML() (string, error) {
	return e.el.InnerHTML()
}

func (e *pwElement) QuerySelector(selector string) (Element, error) {
	handle, err := e.el.QuerySelector(selector)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return &pwElement{el: handle}, nil
}

func (e *pwElement) QuerySelectorAll(selector string) ([]Element, error) {
	handles, err := e.el.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapAll(handles), nil
}

func (e *pwElement) Click(timeout time.Duration) error {
	return mapError(e.el.Click(playwright.ElementHandleClickOptions{
		Timeout: ms(timeout),
	}))
}

func (e *pwElement) ScriptClick() error {
	_, err := e.el.Evaluate("el => el.click()")
	return err
}

func (e *pwElement) ScrollIntoView(block string) error {
	if block == "" {
		block = "start"
	}
	_, err := e.el.Evaluate("(el, block) => el.scrollIntoView({block: block})", block)
	return err
}

func (e *pwElement) IsVisible() (bool, error) {
	return e.el.IsVisible()
}

func (e *pwElement) Hover(timeout time.Duration) error {
	return mapError(e.el.Hover(playwright.ElementHandleHoverOptions{
		Timeout: ms(timeout),
	}))
}
