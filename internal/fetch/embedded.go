package fetch

import (
	"context"
	"net/http"
	"regexp"

	"github.com/rotisserie/eris"
)

// Embedded-payload extraction targets the JSON blobs league sites inline for
// their own front-end charts. Any of these markers may carry the data.
var embeddedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<script[^>]+type="application/json"[^>]*>(.*?)</script>`),
	regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\})\s*;?\s*</script>`),
	regexp.MustCompile(`(?s)window\.__DATA__\s*=\s*(\{.*?\})\s*;?\s*</script>`),
	regexp.MustCompile(`(?s)var\s+chartData\s*=\s*(\[.*?\])\s*;`),
}

var errNoEmbeddedPayload = eris.New("no embedded payload found in page")

// EmbeddedMethod fetches a page like HTMLMethod but extracts a script-embedded
// JSON payload instead of parsing markup.
type EmbeddedMethod struct {
	inner *HTMLMethod
}

// NewEmbeddedMethod creates an embedded-script extraction method. The parser
// receives the extracted JSON, not the page.
func NewEmbeddedMethod(name, sourceID, rawURL string, client *http.Client, parser Parser) *EmbeddedMethod {
	return &EmbeddedMethod{
		inner: NewHTMLMethod(name, sourceID, rawURL, client, extractEmbedded(parser)),
	}
}

func (m *EmbeddedMethod) Name() string     { return m.inner.name }
func (m *EmbeddedMethod) SourceID() string { return m.inner.sourceID }
func (m *EmbeddedMethod) Browser() bool    { return false }

// Execute implements Method.
func (m *EmbeddedMethod) Execute(ctx context.Context, params Params) (Rows, error) {
	return m.inner.Execute(ctx, params)
}

// extractEmbedded wraps a JSON parser so it runs against the first embedded
// payload that parses. The enclosing method converts failures to ParseError.
func extractEmbedded(parser Parser) Parser {
	return ParserFunc(func(payload []byte) (Rows, error) {
		var lastErr error
		for _, pat := range embeddedPatterns {
			m := pat.FindSubmatch(payload)
			if len(m) < 2 {
				continue
			}
			rows, err := parser.Parse(m[1])
			if err == nil {
				return rows, nil
			}
			lastErr = err
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errNoEmbeddedPayload
	})
}
