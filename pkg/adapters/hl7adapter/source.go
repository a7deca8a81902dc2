package hl7adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/oarkflow/errors"
	"github.com/oarkflow/log"

	"github.com/oarkflow/hl7siu/pkg/contracts"
	"github.com/oarkflow/hl7siu/pkg/parsers"
	"github.com/oarkflow/hl7siu/pkg/utils"
)

// Record keys emitted by FileSource.
const (
	FieldRawMessage   = "raw_message"
	FieldSourcePath   = "source_path"
	FieldMessageIndex = "message_index"
)

// ErrFileRead marks failures to open or decode an input file.
var ErrFileRead = errors.New("hl7 file read error")

// FileSourceOption customizes HL7 file source behaviour.
type FileSourceOption func(*FileSource)

func WithLogger(logger *log.Logger) FileSourceOption {
	return func(fs *FileSource) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// FileSource streams HL7 messages from a file, emitting one record per
// message. Messages start at each MSH line; segments are rejoined with \r.
type FileSource struct {
	path   string
	logger *log.Logger

	mu  sync.Mutex
	err error
}

// NewFileSource builds a FileSource with optional behaviour tweaks.
func NewFileSource(path string, opts ...FileSourceOption) *FileSource {
	fs := &FileSource{
		path:   path,
		logger: &log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Setup validates the source file exists and is a regular file.
func (fs *FileSource) Setup(_ context.Context) error {
	if fs.path == "" {
		return fmt.Errorf("%w: path is empty", ErrFileRead)
	}
	return checkRegular(fs.path)
}

// Extract streams HL7 messages as utils.Record objects. Lines before the
// first header are skipped. contracts.WithLimit caps the number of messages.
func (fs *FileSource) Extract(ctx context.Context, opts ...contracts.Option) (<-chan utils.Record, error) {
	limit := contracts.ApplyOptions(opts...).Limit
	rc, err := Open(fs.path)
	if err != nil {
		return nil, err
	}

	fs.setErr(nil)
	out := make(chan utils.Record)
	go func() {
		defer close(out)
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		buf := make([]byte, 0, 128*1024)
		scanner.Buffer(buf, 4*1024*1024)
		scanner.Split(parsers.ScanSegments)
		var builder strings.Builder
		index := 0

		flush := func() bool {
			if builder.Len() == 0 {
				return true
			}
			if limit > 0 && index >= limit {
				return false
			}
			rec := utils.Record{
				FieldRawMessage:   builder.String(),
				FieldSourcePath:   fs.path,
				FieldMessageIndex: index,
			}
			builder.Reset()
			index++
			select {
			case <-ctx.Done():
				return false
			case out <- rec:
				return true
			}
		}

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, parsers.HeaderSegment) {
				if !flush() {
					return
				}
			} else if builder.Len() == 0 {
				fs.logger.Debug().Str("path", fs.path).Msg("skipping line outside of a message")
				continue
			}
			builder.WriteString(line)
			builder.WriteByte('\r')
		}
		if err := scanner.Err(); err != nil {
			fs.logger.Error().Err(err).Str("path", fs.path).Msg("hl7 file source scan error")
			fs.setErr(fmt.Errorf("%w: %s: %v", ErrFileRead, fs.path, err))
			return
		}
		flush()
	}()

	return out, nil
}

// Err reports the read failure that ended the last Extract early. It is
// only meaningful once the channel has been drained.
func (fs *FileSource) Err() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.err
}

func (fs *FileSource) setErr(err error) {
	fs.mu.Lock()
	fs.err = err
	fs.mu.Unlock()
}

// Close implements contracts.Source.
func (fs *FileSource) Close() error {
	return nil
}

func checkRegular(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrFileRead, path)
	}
	return nil
}

// ReadFile loads a whole HL7 file as text, decoding legacy 8-bit encodings
// when the content is not valid UTF-8.
func ReadFile(path string) (string, error) {
	if err := checkRegular(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	text, _, err := Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFileRead, path, err)
	}
	return text, nil
}

// Open returns a UTF-8 reader over path. The encoding is sniffed from the
// first block of the file.
func Open(path string) (io.ReadCloser, error) {
	if err := checkRegular(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	r, _, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrFileRead, path, err)
	}
	return readCloser{Reader: r, Closer: f}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
