package metrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"citydir/internal/model"
)

// ReadCSV loads relay samples from a CSV file.
func ReadCSV(path string) ([]model.RelaySample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]model.RelaySample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var items []model.RelaySample
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && len(rec) > 0 && rec[0] == header[0] {
			continue
		}
		sample, err := parseSample(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, sample)
	}
}

func parseSample(rec []string) (model.RelaySample, error) {
	if len(rec) < len(header) {
		return model.RelaySample{}, fmt.Errorf("expected %d fields, got %d", len(header), len(rec))
	}
	ts, err := time.Parse(time.RFC3339Nano, rec[0])
	if err != nil {
		return model.RelaySample{}, fmt.Errorf("timestamp: %w", err)
	}
	rtt, _ := strconv.ParseFloat(rec[4], 64)
	n, _ := strconv.Atoi(rec[5])
	return model.RelaySample{
		Timestamp: ts,
		City:      rec[1],
		Address:   rec[2],
		Outcome:   rec[3],
		RTTMs:     rtt,
		Bytes:     n,
	}, nil
}
