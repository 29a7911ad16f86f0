package fetch

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/catalog"
)

// Factory materializes catalog chain entries into executable methods. HTTP
// and resty clients are shared across every method the factory builds;
// parsers and bridge commands are looked up per method name.
type Factory struct {
	httpClient  *http.Client
	restClient  *resty.Client
	renderer    Renderer
	browserWait time.Duration

	parsers   map[string]Parser
	bridges   map[string]BridgeCommand
	fallbacks map[string]Parser // per-kind defaults
}

// BridgeCommand names an executable statistics bridge.
type BridgeCommand struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRenderer supplies the headless renderer for browser methods.
func WithRenderer(r Renderer) FactoryOption {
	return func(f *Factory) { f.renderer = r }
}

// WithBrowserTimeout overrides the per-render timeout.
func WithBrowserTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) { f.browserWait = d }
}

// WithParser registers a parser for one method name, overriding the kind
// default. League-specific payload layouts hook in here.
func WithParser(methodName string, p Parser) FactoryOption {
	return func(f *Factory) { f.parsers[methodName] = p }
}

// WithBridge registers a bridge executable for one method name.
func WithBridge(methodName string, cmd BridgeCommand) FactoryOption {
	return func(f *Factory) { f.bridges[methodName] = cmd }
}

// NewFactory creates a method factory. Passing a nil httpClient builds the
// shared scraping client with its bypass transport.
func NewFactory(httpClient *http.Client, restClient *resty.Client, opts ...FactoryOption) *Factory {
	if httpClient == nil {
		httpClient = NewHTMLClient(0)
	}
	if restClient == nil {
		restClient = resty.NewWithClient(httpClient)
	}
	f := &Factory{
		httpClient: httpClient,
		restClient: restClient,
		parsers:    make(map[string]Parser),
		bridges:    make(map[string]BridgeCommand),
		fallbacks: map[string]Parser{
			catalog.KindJSON:     JSONRowsParser(),
			catalog.KindHTML:     HTMLTableParser(""),
			catalog.KindEmbedded: JSONRowsParser(),
			catalog.KindBrowser:  HTMLTableParser(""),
			catalog.KindBridge:   JSONRowsParser(),
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build turns one chain entry into an executable method.
func (f *Factory) Build(spec catalog.MethodSpec) (Method, error) {
	parser := f.parsers[spec.Name]
	if parser == nil {
		parser = f.fallbacks[spec.Kind]
	}
	if parser == nil {
		return nil, eris.Errorf("fetch: no parser for method %s (kind %s)", spec.Name, spec.Kind)
	}

	switch spec.Kind {
	case catalog.KindJSON:
		return NewJSONMethod(spec.Name, spec.SourceID, spec.URL, f.restClient, parser), nil
	case catalog.KindHTML:
		return NewHTMLMethod(spec.Name, spec.SourceID, spec.URL, f.httpClient, parser), nil
	case catalog.KindEmbedded:
		return NewEmbeddedMethod(spec.Name, spec.SourceID, spec.URL, f.httpClient, parser), nil
	case catalog.KindBrowser:
		if f.renderer == nil {
			return nil, eris.Errorf("fetch: method %s needs a renderer", spec.Name)
		}
		return NewBrowserMethod(spec.Name, spec.SourceID, spec.URL, "", f.renderer, f.browserWait, parser), nil
	case catalog.KindBridge:
		cmd, ok := f.bridges[spec.Name]
		if !ok {
			return nil, eris.Errorf("fetch: method %s has no bridge registered", spec.Name)
		}
		return NewBridgeMethod(spec.Name, spec.SourceID, cmd.Command, cmd.Args, cmd.Timeout, parser), nil
	default:
		return nil, eris.Errorf("fetch: unknown method kind %q", spec.Kind)
	}
}

// BuildChain materializes a whole fallback chain, preserving order. Methods
// that cannot be built (no renderer, no bridge binary) are skipped so a
// partially configured engine still serves the methods it can.
func (f *Factory) BuildChain(specs []catalog.MethodSpec) ([]Method, []string) {
	methods := make([]Method, 0, len(specs))
	var skipped []string
	for _, s := range specs {
		m, err := f.Build(s)
		if err != nil {
			skipped = append(skipped, s.Name+": "+firstLine(err.Error()))
			continue
		}
		methods = append(methods, m)
	}
	return methods, skipped
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
