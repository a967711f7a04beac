// Package prompt renders a chunk and a processing spec into the instruction
// text sent to the generation service.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/processing"
	"github.com/teranos/tabula/table"
)

// ErrPromptTooLong is returned when a prompt exceeds its character budget.
var ErrPromptTooLong = errors.Sentinel("prompt too long", errors.ErrConfig)

// SamplesPerColumn is how many non-missing values describe each column.
const SamplesPerColumn = 3

const preamble = `You are a meticulous data processing assistant working on CSV data.
Read the task and the data below carefully and answer in exactly the requested format.`

var formatRules = []string{
	"The first line must be the header row with the column names.",
	"Separate fields with commas.",
	"Wrap any value containing a comma, a quote or a newline in double quotes.",
	"Do not output a row number or index column.",
	"Every row must have the same number of columns as the header.",
}

const closing = "Process the data strictly as described and return only the CSV result, with no other text."

// Builder renders prompts for one processing spec.
type Builder struct {
	logic  string
	schema []processing.OutputField
}

// NewBuilder captures the instructions and output contract of spec.
func NewBuilder(spec *processing.Spec) *Builder {
	return &Builder{
		logic:  spec.ProcessingLogic,
		schema: append([]processing.OutputField(nil), spec.OutputSchema...),
	}
}

// Build renders data into a prompt. The output depends only on data and the
// spec captured by NewBuilder.
func (b *Builder) Build(data *table.Table) string {
	sections := []string{
		preamble,
		describeData(data),
		"## Task\n" + b.logic,
		b.outputContract(),
		"## Data\n```csv\n" + data.CSV() + "```",
		closing,
	}
	return strings.Join(sections, "\n\n")
}

func describeData(data *table.Table) string {
	var sb strings.Builder
	sb.WriteString("## Data description\n")
	fmt.Fprintf(&sb, "The data has %d rows and %d columns.\n\nColumns:", data.NumRows(), data.NumColumns())
	for _, name := range data.Columns() {
		values := data.Column(name)
		fmt.Fprintf(&sb, "\n- %s (%s): samples [%s]",
			name, table.InferType(values), strings.Join(table.Samples(values, SamplesPerColumn), ", "))
	}
	return sb.String()
}

func (b *Builder) outputContract() string {
	var sb strings.Builder
	sb.WriteString("## Output format\nReturn CSV data with these columns:")
	for _, f := range b.schema {
		fmt.Fprintf(&sb, "\n- %s: %s", f.Name, f.Description)
	}
	sb.WriteString("\n\nFormatting rules:")
	for i, rule := range formatRules {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, rule)
	}
	return sb.String()
}

// ValidateLength rejects prompts longer than maxLength characters.
func ValidateLength(prompt string, maxLength int) error {
	n := utf8.RuneCountInString(prompt)
	if n > maxLength {
		err := errors.Wrapf(ErrPromptTooLong, "%d > %d characters", n, maxLength)
		return errors.WithHint(err, "reduce chunk_size")
	}
	return nil
}
