package adapters

import (
	"fmt"
	"io"
	"strings"

	"github.com/oarkflow/log"

	"github.com/oarkflow/hl7siu/pkg/adapters/hl7adapter"
	"github.com/oarkflow/hl7siu/pkg/adapters/ioadapter"
	"github.com/oarkflow/hl7siu/pkg/contracts"
)

// NewSource returns the source for kind. Only "hl7" files are supported.
func NewSource(kind, path string, logger *log.Logger) (contracts.Source, error) {
	switch strings.ToLower(kind) {
	case "", "hl7":
		return hl7adapter.NewFileSource(path, hl7adapter.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", kind)
	}
}

// NewLoader returns a loader writing format to w. columns fixes the CSV
// layout and is ignored by the other formats.
func NewLoader(format string, w io.Writer, columns ...string) (contracts.Loader, error) {
	switch f := strings.ToLower(format); f {
	case ioadapter.FormatJSON, ioadapter.FormatText:
		return ioadapter.NewLoader(w, f), nil
	case ioadapter.FormatCSV:
		return ioadapter.NewLoader(w, f, ioadapter.WithColumns(columns...)), nil
	default:
		return nil, fmt.Errorf("unsupported loader format: %s", format)
	}
}
