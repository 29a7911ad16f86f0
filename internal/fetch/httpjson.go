package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/resilience"
)

// expandURL substitutes {param} placeholders in an endpoint template and
// returns the remaining params for the query string.
func expandURL(tmpl string, params Params) (string, Params) {
	rest := make(Params, len(params))
	u := tmpl
	for k, v := range params {
		ph := "{" + strings.ToLower(k) + "}"
		if strings.Contains(u, ph) {
			u = strings.ReplaceAll(u, ph, v)
			continue
		}
		rest[k] = v
	}
	return u, rest
}

// appendQuery merges leftover params into a URL's query string.
func appendQuery(target string, query Params) (string, error) {
	if len(query) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// JSONMethod fetches a JSON stats endpoint over plain HTTP.
type JSONMethod struct {
	name     string
	sourceID string
	url      string
	client   *resty.Client
	parser   Parser
}

// NewJSONMethod creates a JSON API fetch method.
func NewJSONMethod(name, sourceID, url string, client *resty.Client, parser Parser) *JSONMethod {
	return &JSONMethod{name: name, sourceID: sourceID, url: url, client: client, parser: parser}
}

func (m *JSONMethod) Name() string     { return m.name }
func (m *JSONMethod) SourceID() string { return m.sourceID }
func (m *JSONMethod) Browser() bool    { return false }

// Execute implements Method.
func (m *JSONMethod) Execute(ctx context.Context, params Params) (Rows, error) {
	url, query := expandURL(m.url, params)

	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetHeader("Accept", "application/json").
		Get(url)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetch: %s request", m.name), 0)
	}

	status := resp.StatusCode()
	body := resp.Body()

	if blocked, kind := DetectBlock(resp.RawResponse, body); blocked {
		return nil, &BlockedError{Method: m.name, StatusCode: status, Block: kind}
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Method: m.name}
	}
	if resilience.IsTransientHTTPStatus(status) {
		return nil, resilience.NewTransientError(eris.Errorf("fetch: %s status %d", m.name, status), status)
	}
	if status >= 400 {
		return nil, eris.Errorf("fetch: %s unexpected status %d", m.name, status)
	}

	rows, perr := m.parser.Parse(body)
	if perr != nil {
		return nil, &ParseError{Method: m.name, Err: perr}
	}
	return rows, nil
}
