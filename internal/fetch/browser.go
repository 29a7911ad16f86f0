package fetch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/resilience"
)

// DefaultBrowserTimeout bounds a single headless render. Renders that have
// not produced a payload by then are treated as transient failures.
const DefaultBrowserTimeout = 15 * time.Second

// BrowserMethod drives an external headless renderer for sources that refuse
// plain HTTP clients. It is the designated jump target when earlier methods
// in a chain report bot blocking.
type BrowserMethod struct {
	name     string
	sourceID string
	url      string
	script   string
	renderer Renderer
	timeout  time.Duration
	parser   Parser
}

// NewBrowserMethod creates a browser-rendered fetch method. A zero timeout
// means DefaultBrowserTimeout.
func NewBrowserMethod(name, sourceID, url, script string, renderer Renderer, timeout time.Duration, parser Parser) *BrowserMethod {
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	return &BrowserMethod{
		name:     name,
		sourceID: sourceID,
		url:      url,
		script:   script,
		renderer: renderer,
		timeout:  timeout,
		parser:   parser,
	}
}

func (m *BrowserMethod) Name() string     { return m.name }
func (m *BrowserMethod) SourceID() string { return m.sourceID }
func (m *BrowserMethod) Browser() bool    { return true }

// Execute implements Method.
func (m *BrowserMethod) Execute(ctx context.Context, params Params) (Rows, error) {
	if m.renderer == nil {
		return nil, eris.Errorf("fetch: %s has no renderer configured", m.name)
	}

	target, query := expandURL(m.url, params)
	target, err := appendQuery(target, query)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s parse url", m.name)
	}

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	payload, err := m.renderer.Render(rctx, target, m.script)
	if err != nil {
		// Renders fail for flaky reasons (slow pages, renderer restarts);
		// let the retry policy decide how many chances it gets.
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetch: %s render", m.name), 0)
	}
	if len(payload) == 0 {
		return nil, &ParseError{Method: m.name, Err: eris.New("empty render payload")}
	}

	rows, perr := m.parser.Parse(payload)
	if perr != nil {
		return nil, &ParseError{Method: m.name, Err: perr}
	}
	return rows, nil
}
