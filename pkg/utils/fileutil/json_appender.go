package fileutil

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"unicode"

	"github.com/gofrs/flock"
	"github.com/oarkflow/json"
)

var (
	ErrMissingOpenBracket  = errors.New("invalid JSON file: missing opening bracket")
	ErrMissingCloseBracket = errors.New("invalid JSON file: missing closing bracket")
)

const emptyArray = "[\n]\n"

// Option is a functional option for JSONAppender.
type Option[T any] func(*JSONAppender[T])

// WithTruncate discards any existing file content on open.
func WithTruncate[T any]() Option[T] {
	return func(ja *JSONAppender[T]) {
		ja.truncate = true
	}
}

// WithoutSync skips the fsync after each append.
func WithoutSync[T any]() Option[T] {
	return func(ja *JSONAppender[T]) {
		ja.syncOnAppend = false
	}
}

// WithMarshaler replaces json.Marshal for element encoding. Encoded elements
// must not contain a raw newline at the top level to keep the array readable.
func WithMarshaler[T any](fn func(T) ([]byte, error)) Option[T] {
	return func(ja *JSONAppender[T]) {
		if fn != nil {
			ja.marshal = fn
		}
	}
}

// JSONAppender keeps a file holding a valid JSON array while elements are
// appended one batch at a time. A sibling ".lock" file serializes writers
// across processes.
type JSONAppender[T any] struct {
	filePath       string
	file           *os.File
	fileLock       *flock.Flock
	mu             sync.Mutex
	tailBufferSize int
	syncOnAppend   bool
	truncate       bool
	count          int
	marshal        func(T) ([]byte, error)
}

// NewJSONAppender opens (or creates) filePath as a JSON array.
func NewJSONAppender[T any](filePath string, opts ...Option[T]) (*JSONAppender[T], error) {
	ja := &JSONAppender[T]{
		filePath:       filePath,
		fileLock:       flock.New(filePath + ".lock"),
		tailBufferSize: 1024,
		syncOnAppend:   true,
		marshal: func(v T) ([]byte, error) {
			return json.Marshal(v)
		},
	}
	for _, opt := range opts {
		opt(ja)
	}
	flags := os.O_RDWR | os.O_CREATE
	if ja.truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(filePath, flags, 0o644)
	if err != nil {
		return nil, err
	}
	ja.file = f
	if err := ja.validateOrInitialize(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ja, nil
}

// Path returns the file being written.
func (ja *JSONAppender[T]) Path() string {
	return ja.filePath
}

// Count returns the number of elements appended through this appender.
func (ja *JSONAppender[T]) Count() int {
	ja.mu.Lock()
	defer ja.mu.Unlock()
	return ja.count
}

func (ja *JSONAppender[T]) validateOrInitialize() error {
	fi, err := ja.file.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return ja.rewrite([]byte(emptyArray))
	}
	head := make([]byte, min(fi.Size(), 16))
	if _, err := ja.file.ReadAt(head, 0); err != nil && err != io.EOF {
		return err
	}
	if trimmed := bytes.TrimLeftFunc(head, unicode.IsSpace); len(trimmed) == 0 || trimmed[0] != '[' {
		return ErrMissingOpenBracket
	}
	tail := make([]byte, min(fi.Size(), 16))
	if _, err := ja.file.ReadAt(tail, fi.Size()-int64(len(tail))); err != nil && err != io.EOF {
		return err
	}
	if !bytes.Contains(tail, []byte("]")) {
		return ErrMissingCloseBracket
	}
	return nil
}

func (ja *JSONAppender[T]) rewrite(content []byte) error {
	if err := ja.file.Truncate(0); err != nil {
		return err
	}
	if _, err := ja.file.WriteAt(content, 0); err != nil {
		return err
	}
	return ja.sync()
}

func (ja *JSONAppender[T]) sync() error {
	if ja.syncOnAppend {
		return ja.file.Sync()
	}
	return nil
}

// Append appends a single element.
func (ja *JSONAppender[T]) Append(element T) error {
	return ja.AppendBatch([]T{element})
}

// AppendBatch appends elements in order. The file is a valid JSON array
// before and after the call.
func (ja *JSONAppender[T]) AppendBatch(elements []T) error {
	if len(elements) == 0 {
		return nil
	}
	body, err := ja.encode(elements)
	if err != nil {
		return err
	}

	ja.mu.Lock()
	defer ja.mu.Unlock()
	if err := ja.fileLock.Lock(); err != nil {
		return err
	}
	defer func() {
		_ = ja.fileLock.Unlock()
	}()

	fi, err := ja.file.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		content := append([]byte("[\n  "), body...)
		if err := ja.rewrite(append(content, "\n]\n"...)); err != nil {
			return err
		}
		ja.count += len(elements)
		return nil
	}

	cut, last, err := ja.closingBracket(fi.Size())
	if err != nil {
		return err
	}
	prefix := ",\n  "
	if last == '[' {
		prefix = "\n  "
	}
	data := make([]byte, 0, len(prefix)+len(body)+3)
	data = append(data, prefix...)
	data = append(data, body...)
	data = append(data, "\n]\n"...)
	if err := ja.file.Truncate(cut); err != nil {
		return err
	}
	if _, err := ja.file.WriteAt(data, cut); err != nil {
		return err
	}
	if err := ja.sync(); err != nil {
		return err
	}
	ja.count += len(elements)
	return nil
}

func (ja *JSONAppender[T]) encode(elements []T) ([]byte, error) {
	var body []byte
	for i, element := range elements {
		b, err := ja.marshal(element)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			body = append(body, ",\n  "...)
		}
		body = append(body, b...)
	}
	return body, nil
}

// closingBracket finds the final ']' in the file tail and returns the offset
// just past the last non-space byte before it, along with that byte.
func (ja *JSONAppender[T]) closingBracket(size int64) (int64, byte, error) {
	tailSize := min(int64(ja.tailBufferSize), size)
	offset := size - tailSize
	buf := make([]byte, tailSize)
	if _, err := ja.file.ReadAt(buf, offset); err != nil && err != io.EOF {
		return 0, 0, err
	}
	idx := bytes.LastIndexByte(buf, ']')
	if idx == -1 {
		return 0, 0, ErrMissingCloseBracket
	}
	pos := idx - 1
	for pos >= 0 && unicode.IsSpace(rune(buf[pos])) {
		pos--
	}
	if pos < 0 {
		return 0, 0, errors.New("invalid JSON file: unable to find content before closing bracket")
	}
	return offset + int64(pos) + 1, buf[pos], nil
}

// Close closes the underlying file.
func (ja *JSONAppender[T]) Close() error {
	ja.mu.Lock()
	defer ja.mu.Unlock()
	return ja.file.Close()
}
