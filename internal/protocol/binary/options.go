package binary

import "github.com/danmuck/fibctl/internal/protocol"

const (
	DefaultStringLimit    = 16 * 1024 * 1024
	DefaultContainerLimit = 1 << 20
)

// Options configures envelope strictness and decode limits.
type Options struct {
	StrictWrite    bool
	StrictRead     bool
	StringLimit    int
	ContainerLimit int
	MaxDepth       int
}

func DefaultOptions() Options {
	return Options{
		StrictWrite:    true,
		StrictRead:     false,
		StringLimit:    DefaultStringLimit,
		ContainerLimit: DefaultContainerLimit,
		MaxDepth:       protocol.DefaultMaxDepth,
	}
}

type Option func(*Options)

// WithStrictWrite selects the versioned envelope layout on write.
func WithStrictWrite(v bool) Option {
	return func(o *Options) { o.StrictWrite = v }
}

// WithStrictRead rejects envelopes without a version word.
func WithStrictRead(v bool) Option {
	return func(o *Options) { o.StrictRead = v }
}

// WithStringLimit caps string/binary lengths accepted on read. Zero or
// negative disables the cap.
func WithStringLimit(n int) Option {
	return func(o *Options) { o.StringLimit = n }
}

// WithContainerLimit caps list/set/map counts accepted on read. Zero or
// negative disables the cap.
func WithContainerLimit(n int) Option {
	return func(o *Options) { o.ContainerLimit = n }
}

func WithMaxDepth(n int) Option {
	return func(o *Options) { o.MaxDepth = n }
}

// WithOptions replaces every option at once.
func WithOptions(opts Options) Option {
	return func(o *Options) { *o = opts }
}
