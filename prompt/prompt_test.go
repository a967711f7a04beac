package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/processing"
	"github.com/teranos/tabula/table"
)

func testSpec() *processing.Spec {
	return &processing.Spec{
		ChunkSize:       10,
		ProcessingLogic: "Classify each question as trend, share or other.",
		OutputSchema: []processing.OutputField{
			{Name: "question_id", Description: "id of the source question"},
			{Name: "category", Description: "one of trend, share, other"},
		},
	}
}

func testData(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.Load("question_id,question,weight\n1,\"Sales trend, 2023?\",1.5\n2,Share of revenue,\n3,Anything else,2\n4,More,NaN\n")
	require.NoError(t, err)
	return tbl
}

func TestBuild_SectionOrder(t *testing.T) {
	out := NewBuilder(testSpec()).Build(testData(t))

	markers := []string{
		"You are a meticulous data processing assistant",
		"## Data description",
		"## Task",
		"## Output format",
		"## Data\n```csv",
		"return only the CSV result",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(out, m)
		require.GreaterOrEqual(t, idx, 0, "missing %q", m)
		assert.Greater(t, idx, last, "%q out of order", m)
		last = idx
	}
}

func TestBuild_Content(t *testing.T) {
	out := NewBuilder(testSpec()).Build(testData(t))

	assert.Contains(t, out, "The data has 4 rows and 3 columns.")
	assert.Contains(t, out, "- question_id (integer): samples [1, 2, 3]")
	assert.Contains(t, out, "- weight (number): samples [1.5, 2]")
	assert.Contains(t, out, "Classify each question as trend, share or other.")
	assert.Contains(t, out, "- category: one of trend, share, other")
	assert.Contains(t, out, "5. Every row must have the same number of columns as the header.")
	assert.Contains(t, out, "```csv\nquestion_id,question,weight\n1,\"Sales trend, 2023?\",1.5\n")
}

func TestBuild_Deterministic(t *testing.T) {
	spec := testSpec()
	data := testData(t)

	first := NewBuilder(spec).Build(data)
	second := NewBuilder(spec).Build(data)
	assert.Equal(t, first, second)

	reloaded, err := table.Load(data.CSV())
	require.NoError(t, err)
	assert.Equal(t, first, NewBuilder(spec).Build(reloaded))
}

func TestBuild_SpecCapturedAtConstruction(t *testing.T) {
	spec := testSpec()
	b := NewBuilder(spec)
	before := b.Build(testData(t))

	spec.OutputSchema[0].Description = "mutated"
	assert.Equal(t, before, b.Build(testData(t)))
}

func TestValidateLength(t *testing.T) {
	assert.NoError(t, ValidateLength("abc", 3))
	assert.NoError(t, ValidateLength("名字", 2))

	err := ValidateLength(strings.Repeat("x", 11), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPromptTooLong))
	assert.True(t, errors.Is(err, errors.ErrConfig))
	assert.Contains(t, errors.FlattenHints(err), "chunk_size")
}
