package lru

const defaultCapacity = 128

type options struct {
	capacity int
}

func defaultOptions() *options {
	return &options{capacity: defaultCapacity}
}

// CacheOption configures a Cache constructed with New.
type CacheOption interface {
	apply(*options)
}

type capacityOption int

func (o capacityOption) apply(opts *options) { opts.capacity = int(o) }

// WithCapacity sets the maximum number of entries the cache holds before it
// starts evicting the least-recently-used entry.
func WithCapacity(capacity int) CacheOption {
	return capacityOption(capacity)
}
