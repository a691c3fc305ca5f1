package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapewatch/internal/progress"
)

func TestToDelimitedText_Empty(t *testing.T) {
	assert.Equal(t, "", ToDelimitedText(nil))
	assert.Equal(t, "", ToDelimitedText([]Record{}))
}

func TestToDelimitedText_HeaderAndOrder(t *testing.T) {
	records := []Record{
		{Brand: "JLG", Model: "450AJ", Condition: "Used", Location: "Nashville, TN", Price: "$36,950", URL: "https://x/1"},
		{Brand: "Genie", Model: "Z-45", Condition: "Used", Location: "Austin, TX", Price: "$20,000", URL: "https://x/2"},
	}
	got := ToDelimitedText(records)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Brand,Model,Condition,Location,Price,URL", lines[0])
	assert.Equal(t, `"JLG","450AJ","Used","Nashville, TN","$36,950","https://x/1"`, lines[1])
	assert.Equal(t, `"Genie","Z-45","Used","Austin, TX","$20,000","https://x/2"`, lines[2])
}

func TestToDelimitedText_EscapesQuotesAndCommas(t *testing.T) {
	got := ToDelimitedText([]Record{{Brand: `He said "hi", ok`}})
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"He said ""hi"", ok","","","","",""`, lines[1])
}

func TestToDelimitedText_MissingFieldsAreEmpty(t *testing.T) {
	got := ToDelimitedText([]Record{{URL: "https://x"}})
	assert.NotContains(t, got, "undefined")
	assert.NotContains(t, got, "<nil>")
	assert.True(t, strings.HasSuffix(got, `"","","","","","https://x"`))
}

func TestFromItem_Placeholders(t *testing.T) {
	r := FromItem(progress.Item{Brand: "JLG", Model: "E450AJ", Price: "$22,900"}, "https://x/9")
	assert.Equal(t, Record{
		Brand: "JLG", Model: "E450AJ", Condition: DefaultCondition, Location: DefaultLocation,
		Price: "$22,900", URL: "https://x/9",
	}, r)

	r = FromItem(progress.Item{Condition: "New", Location: "Reno, NV"}, "")
	assert.Equal(t, "New", r.Condition)
	assert.Equal(t, "Reno, NV", r.Location)
}

func TestAccumulator_KeepsDuplicatesInOrder(t *testing.T) {
	acc := NewAccumulator()
	a := Record{Brand: "A", URL: "https://dup"}
	b := Record{Brand: "B", URL: "https://dup"}
	acc.Append(a)
	acc.Append(b)
	acc.Append(a)

	assert.Equal(t, 3, acc.Len())
	assert.Equal(t, []Record{a, b, a}, acc.Records())

	// Records returns a copy.
	got := acc.Records()
	got[0].Brand = "mutated"
	assert.Equal(t, "A", acc.Records()[0].Brand)

	acc.Reset()
	assert.Equal(t, 0, acc.Len())
	assert.Empty(t, acc.Records())
}

func TestExport_WritesFile(t *testing.T) {
	dir := t.TempDir()
	records := []Record{{Brand: "JLG", Model: "450AJ", Price: "$1", URL: "https://x"}}

	path, n, err := Export(records, filepath.Join(dir, "out", "listings"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "listings.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, ToDelimitedText(records), string(data))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, DefaultFilename, resolvePath(""))
	assert.Equal(t, "report.csv", resolvePath("report"))
	assert.Equal(t, "report.txt", resolvePath("report.txt"))
	assert.Equal(t, filepath.Join("out", "my_listings.csv"), resolvePath(filepath.Join("out", "my listings.csv")))
}
