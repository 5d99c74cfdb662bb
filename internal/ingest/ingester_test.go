package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
	"github.com/vsharma-va/ABB-Final/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestIngester(t *testing.T, maxBytes int64) (*Ingester, *storage.Store, *storage.Files) {
	t.Helper()
	store := openTestStore(t)
	files := storage.NewFiles(t.TempDir())
	return NewIngester(store, files, time.UTC, maxBytes), store, files
}

const timestamped = `Id,f1,f2,timestamp,Response
a,1.0,2.0,2024-01-01 00:00:00,0
b,1.5,,2024-01-01 00:00:01,1
c,2.0,3.0,2024-01-01 00:00:02,0
d,2.5,1.0,2024-01-01 00:00:03,0
`

const untimed = `f1,f2,Response
1,2,0
3,4,1
5,6,0
7,8,1
`

func TestIngestTimestamped(t *testing.T) {
	in, store, _ := newTestIngester(t, 0)

	res, err := in.Ingest(context.Background(), "bosch.csv", strings.NewReader(timestamped))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Metadata.TotalRecords != 4 || res.Metadata.TotalColumns != 5 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	if res.Metadata.PassRatePercent != 75 {
		t.Errorf("PassRatePercent = %v, want 75", res.Metadata.PassRatePercent)
	}

	got, err := store.GetDataset(res.Dataset.ID)
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got.OriginalName != "bosch.csv" {
		t.Errorf("OriginalName = %q", got.OriginalName)
	}
	want := time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC)
	if !got.Latest.Equal(want) {
		t.Errorf("Latest = %v, want %v", got.Latest, want)
	}

	b, err := os.ReadFile(got.ProcessedPath)
	if err != nil {
		t.Fatalf("reading processed file: %v", err)
	}
	if string(b) != timestamped {
		t.Errorf("processed file differs from upload:\n%s", b)
	}
}

func TestIngestSynthesizesTimestamps(t *testing.T) {
	in, _, files := newTestIngester(t, 0)

	res, err := in.Ingest(context.Background(), "plain.CSV", strings.NewReader(untimed))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Metadata.TotalColumns != 4 {
		t.Errorf("TotalColumns = %d, want 4", res.Metadata.TotalColumns)
	}
	if anchor := dataset.SyntheticTimestamp(0, time.UTC); !res.Dataset.Earliest.Equal(anchor) {
		t.Errorf("Earliest = %v, want %v", res.Dataset.Earliest, anchor)
	}

	if !files.Exists(res.Dataset.ID, storage.OriginalFile) {
		t.Error("original file missing")
	}

	// The processed file reloads with the same timestamps, even in another zone.
	ist := time.FixedZone("IST", 5*3600+1800)
	table, err := dataset.LoadFile(res.Dataset.ProcessedPath, dataset.LoadOptions{Location: ist})
	if err != nil {
		t.Fatalf("LoadFile(processed): %v", err)
	}
	if table.Schema.Synthesized {
		t.Error("processed file should carry a timestamp column")
	}
	if table.Schema.TimestampColumn != dataset.MarkerColumn {
		t.Errorf("TimestampColumn = %q, want %q", table.Schema.TimestampColumn, dataset.MarkerColumn)
	}
	for i, row := range table.Rows {
		if want := dataset.SyntheticTimestamp(i, time.UTC); !row.Timestamp.Equal(want) {
			t.Errorf("row %d timestamp = %v, want %v", i, row.Timestamp, want)
		}
	}
	if len(table.FeatureNames) != 2+len(dataset.CalendarFeatureNames) {
		t.Errorf("FeatureNames = %v", table.FeatureNames)
	}
}

func TestIngestRejects(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		body     string
		maxBytes int64
		want     error
	}{
		{"not csv", "data.xlsx", untimed, 0, ErrInvalidUpload},
		{"empty", "data.csv", "", 0, ErrInvalidUpload},
		{"header only", "data.csv", "f1,Response\n", 0, ErrInvalidUpload},
		{"no response", "data.csv", "f1,f2\n1,2\n", 0, dataset.ErrDataLoad},
		{"bad label", "data.csv", "f1,Response\n1,2\n", 0, dataset.ErrDataLoad},
		{"too large", "data.csv", untimed, 10, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, store, files := newTestIngester(t, tt.maxBytes)

			_, err := in.Ingest(context.Background(), tt.file, strings.NewReader(tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}

			list, err := store.ListDatasets(10, 0)
			if err != nil {
				t.Fatalf("ListDatasets: %v", err)
			}
			if len(list) != 0 {
				t.Errorf("rejected upload was recorded: %+v", list)
			}
			entries, _ := os.ReadDir(filepath.Join(files.Root, "datasets"))
			if len(entries) != 0 {
				t.Errorf("rejected upload left files behind: %v", entries)
			}
		})
	}
}

func TestIngestCancelled(t *testing.T) {
	in, _, _ := newTestIngester(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := in.Ingest(ctx, "data.csv", strings.NewReader(untimed)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIngestSynthesizesInConfiguredZone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	var logs bytes.Buffer
	in := NewIngester(openTestStore(t), storage.NewFiles(t.TempDir()), kolkata, 0).
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	res, err := in.Ingest(context.Background(), "plain.csv", strings.NewReader(untimed))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got := dataset.FormatTimestamp(res.Metadata.Earliest.In(kolkata)); got != "2025-01-01 10:00:00" {
		t.Errorf("Earliest = %s, want 2025-01-01 10:00:00 local", got)
	}

	// Reloading in UTC keeps the instants; only the display zone changes.
	table, err := dataset.LoadFile(res.Dataset.ProcessedPath, dataset.LoadOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("LoadFile(processed): %v", err)
	}
	for i, row := range table.Rows {
		if want := dataset.SyntheticTimestamp(i, kolkata); !row.Timestamp.Equal(want) {
			t.Errorf("row %d timestamp = %v, want %v", i, row.Timestamp, want)
		}
	}

	if !strings.Contains(logs.String(), "dataset ingested") {
		t.Errorf("log output = %q", logs.String())
	}
}
