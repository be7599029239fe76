package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"
)

// BrowserSession owns one rod.Page per channel key, so browser_* calls from
// the same conversation operate on a continuing page rather than spawning
// a new tab every call. Grounded on the spec's C4 tool set and generalized
// from the teacher's per-channel-key persistence discipline (internal/
// sessions.Manager) applied to a browser context instead of an LLM session.
type BrowserSession struct {
	mu      sync.Mutex
	browser *rod.Browser
	pages   map[string]*rod.Page
}

func NewBrowserSession(browser *rod.Browser) *BrowserSession {
	return &BrowserSession{browser: browser, pages: make(map[string]*rod.Page)}
}

func (s *BrowserSession) pageFor(channelKey string) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[channelKey]; ok {
		return p, nil
	}
	p, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("browser: open page: %w", err)
	}
	s.pages[channelKey] = p
	return p, nil
}

func (s *BrowserSession) close(channelKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[channelKey]; ok {
		_ = p.Close()
		delete(s.pages, channelKey)
	}
}

func channelKeyArg(args map[string]interface{}) string {
	ck, _ := args["channel_key"].(string)
	return ck
}

// BrowserNavigateTool implements browser_navigate.
type BrowserNavigateTool struct{ sess *BrowserSession }

func NewBrowserNavigateTool(sess *BrowserSession) *BrowserNavigateTool {
	return &BrowserNavigateTool{sess: sess}
}
func (t *BrowserNavigateTool) Name() string { return "browser_navigate" }
func (t *BrowserNavigateTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	url, _ := args["url"].(string)
	if url == "" {
		return tools.ErrorResult("browser_navigate requires url")
	}
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	if err := page.Context(ctx).Navigate(url); err != nil {
		return tools.ErrorResult("navigate failed").WithError(err)
	}
	page.MustWaitLoad()
	return tools.NewResult(fmt.Sprintf("navigated to %s", url))
}

// BrowserScreenshotTool implements browser_screenshot, re-encoding via
// disintegration/imaging to a bounded JPEG so large pages don't blow the
// prompt budget C3 enforces downstream.
type BrowserScreenshotTool struct{ sess *BrowserSession }

func NewBrowserScreenshotTool(sess *BrowserSession) *BrowserScreenshotTool {
	return &BrowserScreenshotTool{sess: sess}
}
func (t *BrowserScreenshotTool) Name() string { return "browser_screenshot" }
func (t *BrowserScreenshotTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	raw, err := page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return tools.ErrorResult("screenshot failed").WithError(err)
	}
	resized, err := resizeScreenshot(raw)
	if err != nil {
		return tools.ErrorResult("screenshot re-encode failed").WithError(err)
	}
	res := tools.NewResult("screenshot captured")
	res.ForUser = base64.StdEncoding.EncodeToString(resized)
	return res
}

func resizeScreenshot(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() > 1280 {
		img = imaging.Resize(img, 1280, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BrowserClickTool implements browser_click.
type BrowserClickTool struct{ sess *BrowserSession }

func NewBrowserClickTool(sess *BrowserSession) *BrowserClickTool { return &BrowserClickTool{sess: sess} }
func (t *BrowserClickTool) Name() string                         { return "browser_click" }
func (t *BrowserClickTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	selector, _ := args["selector"].(string)
	if selector == "" {
		return tools.ErrorResult("browser_click requires selector")
	}
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return tools.ErrorResult("element not found: " + selector).WithError(err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return tools.ErrorResult("click failed").WithError(err)
	}
	return tools.NewResult(fmt.Sprintf("clicked %s", selector))
}

// BrowserTypeTool implements browser_type.
type BrowserTypeTool struct{ sess *BrowserSession }

func NewBrowserTypeTool(sess *BrowserSession) *BrowserTypeTool { return &BrowserTypeTool{sess: sess} }
func (t *BrowserTypeTool) Name() string                        { return "browser_type" }
func (t *BrowserTypeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	selector, _ := args["selector"].(string)
	text, _ := args["text"].(string)
	if selector == "" {
		return tools.ErrorResult("browser_type requires selector")
	}
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return tools.ErrorResult("element not found: " + selector).WithError(err)
	}
	if err := el.Input(text); err != nil {
		return tools.ErrorResult("type failed").WithError(err)
	}
	return tools.NewResult(fmt.Sprintf("typed into %s", selector))
}

// BrowserGetTextTool implements browser_get_text.
type BrowserGetTextTool struct{ sess *BrowserSession }

func NewBrowserGetTextTool(sess *BrowserSession) *BrowserGetTextTool {
	return &BrowserGetTextTool{sess: sess}
}
func (t *BrowserGetTextTool) Name() string { return "browser_get_text" }
func (t *BrowserGetTextTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	selector, _ := args["selector"].(string)
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	if selector == "" {
		text, err := page.Context(ctx).MustElement("body").Text()
		if err != nil {
			return tools.ErrorResult("get_text failed").WithError(err)
		}
		return tools.NewResult(text)
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return tools.ErrorResult("element not found: " + selector).WithError(err)
	}
	text, err := el.Text()
	if err != nil {
		return tools.ErrorResult("get_text failed").WithError(err)
	}
	return tools.NewResult(text)
}

// BrowserScrollTool implements browser_scroll.
type BrowserScrollTool struct{ sess *BrowserSession }

func NewBrowserScrollTool(sess *BrowserSession) *BrowserScrollTool {
	return &BrowserScrollTool{sess: sess}
}
func (t *BrowserScrollTool) Name() string { return "browser_scroll" }
func (t *BrowserScrollTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	dy, _ := args["dy"].(float64)
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	if err := page.Context(ctx).Mouse.Scroll(0, dy, 1); err != nil {
		return tools.ErrorResult("scroll failed").WithError(err)
	}
	return tools.NewResult("scrolled")
}

// BrowserWaitForTool implements browser_wait_for.
type BrowserWaitForTool struct{ sess *BrowserSession }

func NewBrowserWaitForTool(sess *BrowserSession) *BrowserWaitForTool {
	return &BrowserWaitForTool{sess: sess}
}
func (t *BrowserWaitForTool) Name() string { return "browser_wait_for" }
func (t *BrowserWaitForTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	selector, _ := args["selector"].(string)
	if selector == "" {
		return tools.ErrorResult("browser_wait_for requires selector")
	}
	timeoutMs, _ := args["timeout_ms"].(float64)
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()
	if _, err := page.Context(waitCtx).Element(selector); err != nil {
		return tools.ErrorResult("wait_for timed out: " + selector).WithError(err)
	}
	return tools.NewResult(fmt.Sprintf("%s appeared", selector))
}

// BrowserEvaluateTool implements browser_evaluate.
type BrowserEvaluateTool struct{ sess *BrowserSession }

func NewBrowserEvaluateTool(sess *BrowserSession) *BrowserEvaluateTool {
	return &BrowserEvaluateTool{sess: sess}
}
func (t *BrowserEvaluateTool) Name() string { return "browser_evaluate" }
func (t *BrowserEvaluateTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	script, _ := args["script"].(string)
	if script == "" {
		return tools.ErrorResult("browser_evaluate requires script")
	}
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	res, err := page.Context(ctx).Eval(script)
	if err != nil {
		return tools.ErrorResult("evaluate failed").WithError(err)
	}
	return tools.NewResult(res.Value.String())
}

// BrowserPDFTool implements browser_pdf.
type BrowserPDFTool struct{ sess *BrowserSession }

func NewBrowserPDFTool(sess *BrowserSession) *BrowserPDFTool { return &BrowserPDFTool{sess: sess} }
func (t *BrowserPDFTool) Name() string                       { return "browser_pdf" }
func (t *BrowserPDFTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	page, err := t.sess.pageFor(channelKeyArg(args))
	if err != nil {
		return tools.ErrorResult(err.Error()).WithError(err)
	}
	reader, err := page.Context(ctx).PDF(&proto.PagePrintToPDF{})
	if err != nil {
		return tools.ErrorResult("pdf export failed").WithError(err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return tools.ErrorResult("pdf read failed").WithError(err)
	}
	res := tools.NewResult("pdf generated")
	res.ForUser = base64.StdEncoding.EncodeToString(data)
	return res
}

// BrowserCloseTool implements browser_close.
type BrowserCloseTool struct{ sess *BrowserSession }

func NewBrowserCloseTool(sess *BrowserSession) *BrowserCloseTool { return &BrowserCloseTool{sess: sess} }
func (t *BrowserCloseTool) Name() string                         { return "browser_close" }
func (t *BrowserCloseTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	t.sess.close(channelKeyArg(args))
	return tools.SilentResult("browser page closed")
}
