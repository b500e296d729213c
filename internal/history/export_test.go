package history

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tier-ranker/internal/model"
)

func exportFixture() []model.RankChangeHistory {
	return []model.RankChangeHistory{
		{
			ProductID:   "p1",
			ProductName: "Vitamin C, 1000mg",
			Timestamp:   time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
			Source:      model.SourceManual,
			Confidence:  0.6,
			UserID:      "editor-7",
			Reason:      "label update",
			Changes: []model.RankChange{
				change(model.FieldPriceRank, model.RankC, model.RankA),
				change(model.FieldOverallRank, model.RankB, model.RankA),
			},
		},
		{ProductID: "p2", Source: model.SourceAutoCalculation, Confidence: 0.95},
	}
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, exportFixture()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, ExportColumns, records[0])
	assert.Equal(t, []string{
		"p1", "Vitamin C, 1000mg", "2026-02-01T09:30:00Z", "priceRank", "C", "A", "2",
		"manual", "editor-7", "label update", "0.60",
	}, records[1])
	assert.Equal(t, "overallRank", records[2][3])
	assert.Equal(t, "1", records[2][6])
}

func TestExportXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, exportFixture()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	rows := f.Sheets[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "Product ID", rows[0].Cells[0].String())
	assert.Equal(t, "Confidence", rows[0].Cells[10].String())
	assert.Equal(t, "p1", rows[1].Cells[0].String())
	assert.Equal(t, "priceRank", rows[1].Cells[3].String())
}
