// Package response turns a generation service reply back into a table and
// checks it against the expected output schema.
package response

import (
	"sort"
	"strings"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/table"
	"go.uber.org/zap"
)

// Reply failures. All are marked errors.ErrResponseFormat so the generation
// client retries them.
var (
	ErrEmptyReply     = errors.Sentinel("empty reply", errors.ErrResponseFormat)
	ErrParse          = errors.Sentinel("parse error", errors.ErrResponseFormat)
	ErrMissingColumns = errors.Sentinel("missing columns", errors.ErrResponseFormat)
)

const fence = "```"

// Clean strips fenced code-block delimiter lines and blank lines. All other
// lines are kept verbatim and in order. Clean is idempotent.
func Clean(raw string) string {
	cleaned, _ := clean(raw)
	return cleaned
}

// clean also reports whether a fence was left open.
func clean(raw string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	inFence := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, fence) {
			inFence = !inFence
			continue
		}
		if trimmed == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), inFence
}

// Parser validates replies against one output schema.
type Parser struct {
	expected []string
	logger   *zap.SugaredLogger
}

// NewParser creates a parser for the given output column names.
func NewParser(expected []string, log *zap.SugaredLogger) *Parser {
	if log == nil {
		log = logger.ComponentLogger("response")
	}
	return &Parser{
		expected: append([]string(nil), expected...),
		logger:   log,
	}
}

// Parse cleans raw, reads it with the same grammar as the source loader and
// requires every expected column. Surplus columns are kept.
func (p *Parser) Parse(raw string) (*table.Table, error) {
	cleaned, openFence := clean(raw)
	if openFence {
		p.logger.Debugw("Reply has an unterminated code fence")
	}
	if cleaned == "" {
		return nil, ErrEmptyReply
	}

	t, err := table.Load(cleaned)
	if err != nil {
		if errors.Is(err, table.ErrEmptyInput) {
			return nil, errors.Wrap(ErrEmptyReply, err.Error())
		}
		return nil, errors.Wrap(ErrParse, err.Error())
	}

	if missing := p.missing(t); len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingColumns, "%s", strings.Join(missing, ", "))
	}
	if surplus := p.surplus(t); len(surplus) > 0 {
		p.logger.Warnw("Reply has columns outside the output schema",
			"surplus", surplus,
			logger.FieldRows, t.NumRows())
	}
	return t, nil
}

func (p *Parser) missing(t *table.Table) []string {
	var out []string
	for _, name := range p.expected {
		if !t.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

func (p *Parser) surplus(t *table.Table) []string {
	want := make(map[string]bool, len(p.expected))
	for _, name := range p.expected {
		want[name] = true
	}
	var out []string
	for _, name := range t.Columns() {
		if !want[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
