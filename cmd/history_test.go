package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/store"
)

func TestParseTimeFlag(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"empty", "", time.Time{}, false},
		{"date", "2026-05-01", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"rfc3339", "2026-05-01T09:00:00+09:00", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"garbage", "last tuesday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimeFlag(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestHistoryFilter(t *testing.T) {
	f, err := historyFilter("p1", "MANUAL", "2026-01-01", "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, "p1", f.ProductID)
	assert.Equal(t, model.SourceManual, f.Source)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), f.Since)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), f.Until)

	_, err = historyFilter("", "robot", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")

	_, err = historyFilter("", "", "", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--until")
}

func TestExportHistory_CSV(t *testing.T) {
	st := newTestStore(t)
	seedSwings(t, st)

	var buf bytes.Buffer
	n, err := exportHistory(context.Background(), st, store.HistoryFilter{ProductID: "p1"}, "csv", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+2*len(model.RatingFields), "header plus one row per changed field")
	assert.Equal(t, history.ExportColumns, records[0])
	assert.Equal(t, "p1", records[1][0])
	assert.Equal(t, "manual", records[1][7])
}

func TestExportHistory_XLSX(t *testing.T) {
	st := newTestStore(t)
	seedSwings(t, st)

	var buf bytes.Buffer
	n, err := exportHistory(context.Background(), st, store.HistoryFilter{}, "xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestExportHistory_UnknownFormat(t *testing.T) {
	st := newTestStore(t)

	var buf bytes.Buffer
	_, err := exportHistory(context.Background(), st, store.HistoryFilter{}, "pdf", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
