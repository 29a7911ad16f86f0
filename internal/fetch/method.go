// Package fetch defines the fetch-method capability: one concrete strategy
// for obtaining raw rows from an upstream (JSON API, HTML scrape, embedded
// script payload, browser render, statistics bridge). League-specific layout
// knowledge lives behind the Parser interface, never in the orchestrator.
package fetch

import (
	"context"
	"fmt"
)

// Params are the source-vocabulary parameters compiled for one attempt.
type Params map[string]string

// Rows is a raw parsed payload: records with named fields, prior to
// normalization.
type Rows []map[string]any

// Method is one strategy in a dataset's fallback chain.
type Method interface {
	// Name is the chain-unique method name.
	Name() string
	// SourceID names the rate-limit bucket this method draws from.
	SourceID() string
	// Browser reports whether the method survives bot-blocking.
	Browser() bool
	// Execute performs the fetch and parse for one attempt.
	Execute(ctx context.Context, params Params) (Rows, error)
}

// Parser converts a raw payload into rows with named fields. Concrete
// per-league layouts are implementations of this interface supplied from
// outside the engine.
type Parser interface {
	Parse(payload []byte) (Rows, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(payload []byte) (Rows, error)

// Parse implements Parser.
func (f ParserFunc) Parse(payload []byte) (Rows, error) { return f(payload) }

// Renderer is the external headless-browser capability. Its output is
// indistinguishable downstream from any other method's raw payload.
type Renderer interface {
	Render(ctx context.Context, url, script string) ([]byte, error)
}

// BlockedError marks a bot-protection response. The orchestrator reacts by
// abandoning remaining HTTP-only methods and jumping to a browser method.
type BlockedError struct {
	Method     string
	StatusCode int
	Block      BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("fetch: %s blocked (status %d, %s)", e.Method, e.StatusCode, e.Block)
}

// ParseError marks an unparsable or malformed response: fatal for the method
// that produced it, the chain advances.
type ParseError struct {
	Method string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fetch: %s unparsable response: %v", e.Method, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError is a definitive upstream not-found: the requested slice of
// data does not exist. The whole chain stops and the request resolves to a
// confirmed-empty table, not a failure.
type NotFoundError struct {
	Method string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fetch: %s reports data does not exist", e.Method)
}
