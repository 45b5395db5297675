package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// Format names an output encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(raw); f {
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", raw)
	}
}

// ContentType is the MIME type of artifacts in format f.
func (f Format) ContentType() string {
	if f == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv"
}

// Sink receives rows. Close finalizes the output but does not close the
// underlying writer.
type Sink interface {
	Write(Row) error
	Close() error
}

// NewSink creates a sink of format f on w.
func NewSink(f Format, w io.Writer) (Sink, error) {
	switch f {
	case FormatCSV:
		return NewCSVSink(w)
	case FormatParquet:
		return NewParquetSink(w)
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
}

// CSVSink writes RFC 4180 CSV with a header row.
type CSVSink struct {
	w *csv.Writer
}

// NewCSVSink writes the header and returns the sink.
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSVSink{w: cw}, nil
}

func (s *CSVSink) Write(r Row) error {
	if err := s.w.Write(r.Values()); err != nil {
		return fmt.Errorf("write csv row %s: %w", r.IssueID, err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ParquetSink writes a snappy-compressed Parquet file with one string column
// per entry of Columns.
type ParquetSink struct {
	file source.ParquetFile
	pw   *writer.ParquetWriter
}

// NewParquetSink prepares a Parquet writer on w.
func NewParquetSink(w io.Writer) (*ParquetSink, error) {
	pf := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(pf, new(Row), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &ParquetSink{file: pf, pw: pw}, nil
}

func (s *ParquetSink) Write(r Row) error {
	if err := s.pw.Write(r); err != nil {
		return fmt.Errorf("write parquet row %s: %w", r.IssueID, err)
	}
	return nil
}

func (s *ParquetSink) Close() error {
	if err := s.pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet: %w", err)
	}
	return nil
}
