package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/resilience"
)

// DefaultBridgeTimeout bounds one statistics-bridge invocation.
const DefaultBridgeTimeout = 30 * time.Second

// BridgeMethod shells out to a statistics-bridge process. The bridge reads a
// JSON request on stdin and answers with a JSON payload on stdout, which is
// handed to the parser like any other raw payload.
type BridgeMethod struct {
	name     string
	sourceID string
	command  string
	args     []string
	timeout  time.Duration
	parser   Parser
}

// NewBridgeMethod creates a bridge-backed fetch method. A zero timeout means
// DefaultBridgeTimeout.
func NewBridgeMethod(name, sourceID, command string, args []string, timeout time.Duration, parser Parser) *BridgeMethod {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	return &BridgeMethod{
		name:     name,
		sourceID: sourceID,
		command:  command,
		args:     args,
		timeout:  timeout,
		parser:   parser,
	}
}

func (m *BridgeMethod) Name() string     { return m.name }
func (m *BridgeMethod) SourceID() string { return m.sourceID }
func (m *BridgeMethod) Browser() bool    { return false }

type bridgeRequest struct {
	Method string `json:"method"`
	Params Params `json:"params"`
}

// Execute implements Method.
func (m *BridgeMethod) Execute(ctx context.Context, params Params) (Rows, error) {
	if m.command == "" {
		return nil, eris.Errorf("fetch: %s has no bridge command configured", m.name)
	}

	input, err := json.Marshal(bridgeRequest{Method: m.name, Params: params})
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s encode bridge request", m.name)
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, m.command, m.args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(cctx.Err(), "fetch: %s bridge timed out", m.name), 0)
		}
		// A crashed or missing bridge process may come back next attempt.
		return nil, resilience.NewTransientError(
			eris.Wrapf(err, "fetch: %s bridge failed: %s", m.name, stderr.String()), 0)
	}

	rows, perr := m.parser.Parse(stdout.Bytes())
	if perr != nil {
		return nil, &ParseError{Method: m.name, Err: perr}
	}
	return rows, nil
}
