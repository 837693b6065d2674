// Package export writes fitness history to columnar files for offline
// analysis.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
)

// ErrNoEntries is returned when there is nothing to export.
var ErrNoEntries = errors.New("no history entries to export")

const writerParallelism = 4

// HistoryRow is the parquet layout of one history entry.
type HistoryRow struct {
	ID           string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AthleteID    string  `parquet:"name=athlete_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Month        string  `parquet:"name=month, type=BYTE_ARRAY, convertedtype=UTF8"`
	DateUnixMs   int64   `parquet:"name=date_unix_ms, type=INT64"`
	FitnessIndex float64 `parquet:"name=fitness_index, type=DOUBLE"`
	Source       string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Confidence   string  `parquet:"name=confidence, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Notes        string  `parquet:"name=notes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Row converts an entry to its parquet layout.
func Row(e model.VdotHistoryEntry) HistoryRow {
	d := e.Date.UTC()
	return HistoryRow{
		ID:           e.ID,
		AthleteID:    e.AthleteID,
		Month:        d.Format("2006-01"),
		DateUnixMs:   d.UnixMilli(),
		FitnessIndex: e.FitnessIndex,
		Source:       e.Source,
		Confidence:   string(e.Confidence),
		Notes:        e.Notes,
	}
}

// Entry converts a parquet row back into a history entry.
func (r HistoryRow) Entry() model.VdotHistoryEntry {
	return model.VdotHistoryEntry{
		ID:           r.ID,
		AthleteID:    r.AthleteID,
		Date:         time.UnixMilli(r.DateUnixMs).UTC(),
		FitnessIndex: r.FitnessIndex,
		Source:       r.Source,
		Confidence:   types.Tier(r.Confidence),
		Notes:        r.Notes,
	}
}

// MarshalHistory encodes entries as a snappy-compressed parquet file.
func MarshalHistory(entries []model.VdotHistoryEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(HistoryRow), writerParallelism)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, e := range entries {
		if err := pw.Write(Row(e)); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("write history row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finish parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteHistory encodes entries to w.
func WriteHistory(w io.Writer, entries []model.VdotHistoryEntry) (int, error) {
	data, err := MarshalHistory(entries)
	if err != nil {
		return 0, err
	}
	return w.Write(data)
}

// WriteHistoryFile encodes entries to the file at path, replacing it.
func WriteHistoryFile(path string, entries []model.VdotHistoryEntry) error {
	data, err := MarshalHistory(entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
