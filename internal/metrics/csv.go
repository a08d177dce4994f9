package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"citydir/internal/model"
)

var header = []string{
	"timestamp",
	"city",
	"address",
	"outcome",
	"rtt_ms",
	"bytes",
}

// WriteCSV writes relay samples to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []model.RelaySample) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	return writeRecords(writer, items)
}

// AppendCSV appends samples to path, writing the header when the file is new.
// Callers serialise concurrent appends to the same file.
func AppendCSV(path string, items []model.RelaySample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	return writeRecords(writer, items)
}

func writeRecords(writer *csv.Writer, items []model.RelaySample) error {
	for _, m := range items {
		record := []string{
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			m.City,
			m.Address,
			m.Outcome,
			strconv.FormatFloat(m.RTTMs, 'f', 3, 64),
			strconv.Itoa(m.Bytes),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
