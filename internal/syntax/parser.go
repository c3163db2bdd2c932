package syntax

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrEnded is returned when a Parser is written to after End.
var ErrEnded = errors.New("syntax: parser already ended")

// Parser accumulates source text across Write calls and reports parse events
// for the whole text on End. Splitting the input lets callers splice
// synthetic text (such as a cursor marker) between two halves of a buffer.
type Parser struct {
	handler Handler
	buf     bytes.Buffer
	ended   bool
}

// Result describes a finished parse.
type Result struct {
	Chunk *Node
	// HasErrors reports that part of the input could not be parsed. The
	// recognisable parts were still reported to the Handler.
	HasErrors bool
	Source    []byte
}

// NewParser returns a Parser reporting to h.
func NewParser(h Handler) *Parser {
	return &Parser{handler: h}
}

// Write appends text to the pending input.
func (p *Parser) Write(text string) error {
	if p.ended {
		return ErrEnded
	}
	p.buf.WriteString(text)
	return nil
}

// End appends text, parses the accumulated input and reports every event to
// the Handler before returning.
func (p *Parser) End(ctx context.Context, text string) (*Result, error) {
	if p.ended {
		return nil, ErrEnded
	}
	p.ended = true
	p.buf.WriteString(text)
	src := p.buf.Bytes()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(Grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("syntax: tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	b := &builder{src: src}
	chunk := b.chunk(root)
	comments := b.comments(root)

	e := &emitter{h: p.handler}
	for _, c := range comments {
		p.handler.NodeCreated(c)
	}
	e.chunk(chunk)

	return &Result{Chunk: chunk, HasErrors: root.HasError(), Source: src}, nil
}

// Parse is a convenience for a single-shot parse of src.
func Parse(ctx context.Context, h Handler, src string) (*Result, error) {
	return NewParser(h).End(ctx, src)
}
