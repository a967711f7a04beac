package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/tabula/ai/tracker"
	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/table"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	c, err := config.LoadWithViper(v)
	require.NoError(t, err)
	return c
}

func TestMarshalConfig(t *testing.T) {
	c := defaultConfig(t)

	t.Run("toml", func(t *testing.T) {
		out, err := marshalConfig(c, "toml")
		require.NoError(t, err)
		assert.Contains(t, out, "# tabula configuration")

		var decoded map[string]interface{}
		_, err = toml.Decode(out, &decoded)
		require.NoError(t, err)
		assert.Contains(t, decoded, "server")
		assert.Contains(t, decoded, "limits")
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := marshalConfig(c, "yaml")
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
		assert.Contains(t, decoded, "artifacts")
	})

	t.Run("json", func(t *testing.T) {
		out, err := marshalConfig(c, "json")
		require.NoError(t, err)
		assert.Contains(t, out, `"max_upload_mb"`)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := marshalConfig(c, "ini")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInput))
	})
}

func TestOpenLedger(t *testing.T) {
	l, err := openLedger("")
	require.NoError(t, err)
	assert.Nil(t, l.runs)
	assert.Nil(t, l.calls)
	l.Close()

	path := filepath.Join(t.TempDir(), "nested", "tabula.db")
	l, err = openLedger(path)
	require.NoError(t, err)
	defer l.Close()
	assert.NotNil(t, l.runs)
	assert.NotNil(t, l.calls)
	assert.FileExists(t, path)
}

func TestRequireLedger_NoPath(t *testing.T) {
	_, err := requireLedger("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestWriteTable(t *testing.T) {
	tbl, err := table.New([]string{"id", "name"}, [][]string{{"1", "ada"}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "result.csv")
	require.NoError(t, writeTable(path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ada\n", string(data))
}

func TestProcessedName(t *testing.T) {
	assert.Equal(t, "orders.processed.csv", processedName("/in/orders.csv"))
	assert.Equal(t, "a.b.processed.csv", processedName("a.b.CSV"))
}

func TestSameDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, sameDir(dir, dir+string(filepath.Separator)))
	assert.False(t, sameDir(dir, filepath.Join(dir, "out")))
}

func TestUsageTable(t *testing.T) {
	data := usageTable([]tracker.ModelBreakdown{
		{Provider: "openai", Model: "gpt-4o", Calls: 4, Failures: 1, TotalTokens: 900, AvgDurationMS: 812.4},
	})
	require.Len(t, data, 2)
	assert.Equal(t, []string{"openai", "gpt-4o", "4", "1", "900", "812"}, data[1])
}

func TestRetention(t *testing.T) {
	assert.Equal(t, "kept forever", retention(0))
	assert.Equal(t, "kept 24h", retention(24))
}
