package memory

// AddOptions carries the optional parameters of AddMemory.
type AddOptions struct {
	// Metadata is arbitrary structured payload stored with the event.
	Metadata map[string]interface{}

	// TTLHours sets the event's expiry relative to its creation time.
	// Zero means the event never expires on its own; the maximum-age
	// pruning policy still applies.
	TTLHours float64
}

// AddOption configures an AddMemory call.
type AddOption func(*AddOptions)

// WithMetadata attaches structured metadata to the event.
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(o *AddOptions) {
		o.Metadata = metadata
	}
}

// WithTTLHours sets the event's time-to-live in hours.
func WithTTLHours(hours float64) AddOption {
	return func(o *AddOptions) {
		o.TTLHours = hours
	}
}

// applyAddOptions folds the option list and validates it. A negative TTL is
// rejected.
func applyAddOptions(opts []AddOption) (*AddOptions, error) {
	options := &AddOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.TTLHours < 0 {
		return nil, ErrInvalidInput
	}
	return options, nil
}

// QueryOptions carries the optional parameters of RecordQuery.
type QueryOptions struct {
	// DatasetID is the resource the query targeted, when known.
	DatasetID string

	// Depth is the traversal depth used by the query.
	Depth int
}

// QueryOption configures a RecordQuery call.
type QueryOption func(*QueryOptions)

// WithDatasetID records which resource the query targeted.
func WithDatasetID(datasetID string) QueryOption {
	return func(o *QueryOptions) {
		o.DatasetID = datasetID
	}
}

// WithDepth records the traversal depth of the query.
func WithDepth(depth int) QueryOption {
	return func(o *QueryOptions) {
		o.Depth = depth
	}
}

func applyQueryOptions(opts []QueryOption) *QueryOptions {
	options := &QueryOptions{Depth: defaultQueryDepth}
	for _, opt := range opts {
		opt(options)
	}
	if options.Depth <= 0 {
		options.Depth = defaultQueryDepth
	}
	return options
}
