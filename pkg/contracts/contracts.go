package contracts

import (
	"context"

	"github.com/oarkflow/hl7siu/pkg/utils"
)

type SourceOption struct {
	Limit int
}

// Option defines a function type for configuring a Source extraction.
type Option func(*SourceOption)

// WithLimit caps the number of records a source emits. Zero means no limit.
func WithLimit(limit int) Option {
	return func(o *SourceOption) {
		o.Limit = limit
	}
}

// ApplyOptions folds opts into a SourceOption.
func ApplyOptions(opts ...Option) SourceOption {
	var o SourceOption
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Source interface {
	Setup(ctx context.Context) error
	Extract(ctx context.Context, opts ...Option) (<-chan utils.Record, error)
	Close() error
}

type Loader interface {
	Setup(ctx context.Context) error
	StoreBatch(ctx context.Context, batch []utils.Record) error
	StoreSingle(ctx context.Context, rec utils.Record) error
	Close() error
}

type Transformer interface {
	Name() string
	Transform(ctx context.Context, rec utils.Record) (utils.Record, error)
}

type MultiTransformer interface {
	TransformMany(ctx context.Context, rec utils.Record) ([]utils.Record, error)
}

// StreamErrorer is implemented by sources that can fail after Extract has
// returned. Err is checked once the channel is drained.
type StreamErrorer interface {
	Err() error
}

// StreamErr returns src's deferred extraction error, if it reports one.
func StreamErr(src Source) error {
	if se, ok := src.(StreamErrorer); ok {
		return se.Err()
	}
	return nil
}
