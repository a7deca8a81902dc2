package ioadapter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/oarkflow/json"

	"github.com/oarkflow/hl7siu/pkg/utils"
)

// Supported loader formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

// Adapter writes records to an io.Writer. JSON output is one object per
// line; CSV output writes a header row before the first record.
type Adapter struct {
	mu      sync.Mutex
	writer  io.Writer
	format  string
	columns []string
	csv     *csv.Writer
	wrote   bool
}

// LoaderOption customizes an Adapter.
type LoaderOption func(*Adapter)

// WithColumns fixes the CSV column order. Without it the columns are the
// sorted keys of the first record stored.
func WithColumns(columns ...string) LoaderOption {
	return func(a *Adapter) {
		a.columns = append([]string(nil), columns...)
	}
}

func NewLoader(writer io.Writer, format string, opts ...LoaderOption) *Adapter {
	a := &Adapter{
		writer: writer,
		format: strings.ToLower(strings.TrimSpace(format)),
	}
	if a.format == "" {
		a.format = FormatJSON
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (ioa *Adapter) Setup(_ context.Context) error {
	if ioa.writer == nil {
		return fmt.Errorf("io loader: writer is nil")
	}
	switch ioa.format {
	case FormatJSON, FormatText:
	case FormatCSV:
		ioa.csv = csv.NewWriter(ioa.writer)
	default:
		return fmt.Errorf("io loader: unsupported format %q", ioa.format)
	}
	return nil
}

func (ioa *Adapter) StoreBatch(ctx context.Context, records []utils.Record) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ioa.StoreSingle(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (ioa *Adapter) StoreSingle(_ context.Context, rec utils.Record) error {
	ioa.mu.Lock()
	defer ioa.mu.Unlock()
	switch ioa.format {
	case FormatCSV:
		return ioa.writeCSV(rec)
	case FormatJSON:
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = ioa.writer.Write(append(data, '\n'))
		return err
	default:
		_, err := fmt.Fprintf(ioa.writer, "%v\n", rec)
		return err
	}
}

func (ioa *Adapter) writeCSV(rec utils.Record) error {
	if ioa.csv == nil {
		ioa.csv = csv.NewWriter(ioa.writer)
	}
	if !ioa.wrote {
		if len(ioa.columns) == 0 {
			ioa.columns = utils.SortedKeys(rec)
		}
		if err := ioa.csv.Write(ioa.columns); err != nil {
			return err
		}
		ioa.wrote = true
	}
	row := make([]string, len(ioa.columns))
	for i, key := range ioa.columns {
		row[i] = utils.ToString(rec[key])
	}
	if err := ioa.csv.Write(row); err != nil {
		return err
	}
	ioa.csv.Flush()
	return ioa.csv.Error()
}

// Close flushes pending output and closes the writer when it is an io.Closer.
func (ioa *Adapter) Close() error {
	ioa.mu.Lock()
	defer ioa.mu.Unlock()
	if ioa.csv != nil {
		ioa.csv.Flush()
		if err := ioa.csv.Error(); err != nil {
			return err
		}
	}
	if closer, ok := ioa.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
