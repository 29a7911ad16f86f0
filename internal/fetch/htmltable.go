package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/resilience"
)

const maxHTMLBody = 4 << 20 // league stats pages stay well under 4MB

// NewHTMLClient builds the shared HTTP client for HTML scraping methods,
// with the cloudflare bypass round-tripper in front of the transport.
func NewHTMLClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}
	client.Transport = cloudflarebp.AddCloudFlareByPass(client.Transport)
	return client
}

// HTMLMethod scrapes an HTML page and parses rows out of it. The bot
// protections of the league site decide whether this method or its browser
// fallback ends up answering.
type HTMLMethod struct {
	name     string
	sourceID string
	url      string
	client   *http.Client
	parser   Parser
}

// NewHTMLMethod creates an HTML scrape fetch method.
func NewHTMLMethod(name, sourceID, rawURL string, client *http.Client, parser Parser) *HTMLMethod {
	return &HTMLMethod{name: name, sourceID: sourceID, url: rawURL, client: client, parser: parser}
}

func (m *HTMLMethod) Name() string     { return m.name }
func (m *HTMLMethod) SourceID() string { return m.sourceID }
func (m *HTMLMethod) Browser() bool    { return false }

// Execute implements Method.
func (m *HTMLMethod) Execute(ctx context.Context, params Params) (Rows, error) {
	target, query := expandURL(m.url, params)
	target, err := appendQuery(target, query)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s parse url", m.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s create request", m.name)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetch: %s request", m.name), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBody))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetch: %s read body", m.name), 0)
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, &BlockedError{Method: m.name, StatusCode: resp.StatusCode, Block: kind}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Method: m.name}
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(eris.Errorf("fetch: %s status %d", m.name, resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("fetch: %s unexpected status %d", m.name, resp.StatusCode)
	}

	rows, perr := m.parser.Parse(body)
	if perr != nil {
		return nil, &ParseError{Method: m.name, Err: perr}
	}
	return rows, nil
}
