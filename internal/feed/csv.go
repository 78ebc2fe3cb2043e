package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/enriplaso/BackMark/internal/contracts"
)

// CSVSource streams ticks from a candle CSV file with the column order
// timestamp,open,close,high,low,volume. Timestamps are unix
// milliseconds. A header row is skipped when present.
type CSVSource struct {
	file   *os.File
	reader *csv.Reader
	line   int
}

// OpenCSV opens a candle CSV file as a tick source.
func OpenCSV(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candle file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 6
	reader.TrimLeadingSpace = true

	return &CSVSource{file: file, reader: reader}, nil
}

// Next returns the next tick, or io.EOF at end of file.
func (s *CSVSource) Next(ctx context.Context) (contracts.Tick, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Tick{}, err
	}

	record, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			return contracts.Tick{}, io.EOF
		}
		return contracts.Tick{}, fmt.Errorf("failed to read candle row: %w", err)
	}
	s.line++

	candle, err := parseCandle(record)
	if err != nil {
		// A non-numeric first row is a header, not data.
		if s.line == 1 {
			return s.Next(ctx)
		}
		return contracts.Tick{}, fmt.Errorf("row %d: %w", s.line, err)
	}

	return candle.Tick(), nil
}

// Close releases the underlying file.
func (s *CSVSource) Close() error {
	return s.file.Close()
}

func parseCandle(record []string) (contracts.Candle, error) {
	ms, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return contracts.Candle{}, fmt.Errorf("invalid timestamp %q", record[0])
	}

	values := make([]float64, 5)
	for i, field := range record[1:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return contracts.Candle{}, fmt.Errorf("invalid value %q", field)
		}
		values[i] = v
	}

	return contracts.Candle{
		Time:   time.UnixMilli(ms).UTC(),
		Open:   values[0],
		Close:  values[1],
		High:   values[2],
		Low:    values[3],
		Volume: values[4],
	}, nil
}

// WriteCSV writes candles to a CSV file in the same format OpenCSV
// reads, header row included.
func WriteCSV(path string, candles []contracts.Candle) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create candle file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "open", "close", "high", "low", "volume"}); err != nil {
		return err
	}

	for _, c := range candles {
		record := []string{
			strconv.FormatInt(c.Time.UnixMilli(), 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
