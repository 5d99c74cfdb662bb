// Package ingest turns uploaded CSV files into stored datasets.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
	"github.com/vsharma-va/ABB-Final/internal/storage"
	"github.com/vsharma-va/ABB-Final/internal/telemetry"
)

var (
	// ErrInvalidUpload is returned for uploads that are not usable CSV files.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("upload too large")
)

// DatasetStore persists dataset metadata.
type DatasetStore interface {
	SaveDataset(d storage.Dataset) error
}

// Ingester validates uploads and records them as datasets.
type Ingester struct {
	store    DatasetStore
	files    *storage.Files
	loc      *time.Location
	maxBytes int64
	logger   *slog.Logger
}

// NewIngester creates an Ingester. A maxBytes of 0 disables the size limit.
// A nil loc means UTC.
func NewIngester(store DatasetStore, files *storage.Files, loc *time.Location, maxBytes int64) *Ingester {
	if loc == nil {
		loc = time.UTC
	}
	return &Ingester{
		store:    store,
		files:    files,
		loc:      loc,
		maxBytes: maxBytes,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger used for ingest outcomes and returns in.
func (in *Ingester) WithLogger(l *slog.Logger) *Ingester {
	if l != nil {
		in.logger = l
	}
	return in
}

// Result is the outcome of a successful ingest.
type Result struct {
	Dataset  storage.Dataset
	Metadata dataset.Metadata
}

// Ingest stores r as a new dataset named fileName. The original upload is
// kept as-is; the processed copy always carries a timestamp column so it
// can be reloaded with identical row timestamps.
func (in *Ingester) Ingest(ctx context.Context, fileName string, r io.Reader) (Result, error) {
	res, err := in.ingest(ctx, fileName, r)
	status := "succeeded"
	if err != nil {
		status = "failed"
		in.logger.Warn("dataset ingest failed", "file", fileName, "error", err)
	} else {
		in.logger.Info("dataset ingested",
			"id", res.Dataset.ID,
			"file", fileName,
			"records", res.Metadata.TotalRecords,
			"pass_rate", res.Metadata.PassRatePercent,
		)
	}
	telemetry.DatasetIngested(status)
	return res, err
}

func (in *Ingester) ingest(ctx context.Context, fileName string, r io.Reader) (Result, error) {
	name := filepath.Base(strings.TrimSpace(fileName))
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return Result{}, fmt.Errorf("%w: %q is not a .csv file", ErrInvalidUpload, fileName)
	}

	if in.maxBytes > 0 {
		r = io.LimitReader(r, in.maxBytes+1)
	}

	id := uuid.New().String()
	originalPath, n, err := in.files.Save(id, storage.OriginalFile, r)
	if err != nil {
		return Result{}, fmt.Errorf("storing upload: %w", err)
	}
	cleanup := func() {
		if err := in.files.Remove(id); err != nil {
			in.logger.Error("failed to remove dataset files", "id", id, "error", err)
		}
	}
	if n == 0 {
		cleanup()
		return Result{}, fmt.Errorf("%w: file is empty", ErrInvalidUpload)
	}
	if in.maxBytes > 0 && n > in.maxBytes {
		cleanup()
		return Result{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, in.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return Result{}, err
	}

	table, err := dataset.LoadFile(originalPath, dataset.LoadOptions{Location: in.loc})
	if err != nil {
		cleanup()
		return Result{}, err
	}
	if len(table.Rows) == 0 {
		cleanup()
		return Result{}, fmt.Errorf("%w: file has no data rows", ErrInvalidUpload)
	}

	processedPath, err := in.writeProcessed(id, originalPath, table)
	if err != nil {
		cleanup()
		return Result{}, err
	}

	meta := dataset.Summarize(table)
	d := storage.Dataset{
		ID:              id,
		OriginalName:    name,
		CreatedAt:       time.Now().UTC(),
		TotalRecords:    meta.TotalRecords,
		TotalColumns:    meta.TotalColumns,
		PassRatePercent: meta.PassRatePercent,
		Earliest:        meta.Earliest,
		Latest:          meta.Latest,
		ProcessedPath:   processedPath,
	}
	if err := in.store.SaveDataset(d); err != nil {
		cleanup()
		return Result{}, fmt.Errorf("saving dataset: %w", err)
	}
	return Result{Dataset: d, Metadata: meta}, nil
}

// writeProcessed copies the original file into processed.csv. When the
// source had no timestamp column, a synthetic_timestamp column holding the
// generated timestamps is appended.
func (in *Ingester) writeProcessed(id, originalPath string, table *dataset.Table) (string, error) {
	src, err := os.Open(originalPath)
	if err != nil {
		return "", fmt.Errorf("reopening upload: %w", err)
	}
	defer src.Close()

	if !table.Schema.Synthesized {
		path, _, err := in.files.Save(id, storage.ProcessedFile, src)
		return path, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(appendTimestamps(pw, src, table))
	}()
	path, _, err := in.files.Save(id, storage.ProcessedFile, pr)
	pr.Close()
	if err != nil {
		return "", fmt.Errorf("writing processed file: %w", err)
	}
	return path, nil
}

func appendTimestamps(w io.Writer, r io.Reader, table *dataset.Table) error {
	cr := csv.NewReader(bufio.NewReader(r))
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	header, err := cr.Read()
	if err != nil {
		return err
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	if err := cw.Write(append(header, dataset.MarkerColumn)); err != nil {
		return err
	}
	for i := 0; ; i++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if i >= len(table.Rows) {
			return fmt.Errorf("row %d not present in loaded table", i+1)
		}
		if err := cw.Write(append(rec, table.Rows[i].Timestamp.Format(time.RFC3339))); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
