package graph

// MediaEntity is one entity extracted from media content and tracked by the
// graph service.
type MediaEntity struct {
	// ID is the entity's identifier. Entities submitted without an ID
	// are assigned one locally before the upstream call.
	ID string `json:"id,omitempty"`

	// Type is the entity kind, for example "object", "scene", "person".
	Type string `json:"type"`

	// Content is the entity's textual description.
	Content string `json:"content"`

	// StartMS and EndMS bound the entity's appearance in the media
	// timeline, in milliseconds.
	StartMS int64 `json:"start_ms,omitempty"`
	EndMS   int64 `json:"end_ms,omitempty"`

	// Metadata is arbitrary structured payload.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Score is the upstream relevance score. After temporal
	// re-weighting it carries the adjusted score.
	Score float64 `json:"score,omitempty"`

	// AutoRelate asks the graph service to infer relationships for the
	// entity automatically.
	AutoRelate bool `json:"auto_relate"`
}

// Relationship is one edge between two entities in a search result.
type Relationship struct {
	FromID string  `json:"from_id"`
	ToID   string  `json:"to_id"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight,omitempty"`
}

// GraphSearchResult is a graph search response. All collection fields are
// always non-nil, including on the degraded fallback path, so callers can
// range over them without nil checks.
type GraphSearchResult struct {
	Query         string         `json:"query"`
	Entities      []MediaEntity  `json:"entities"`
	Relationships []Relationship `json:"relationships"`

	// RelevanceScores maps entity IDs to the upstream's relevance scores.
	// When scores arrive only through this map, they seed the entities'
	// Score fields before temporal re-weighting.
	RelevanceScores map[string]float64 `json:"relevance_scores"`

	// Context carries the personalization summary: which preferred types
	// and recent patterns influenced the call. Empty when the search ran
	// without user context.
	Context map[string]interface{} `json:"context"`

	// Degraded is true when the upstream was unreachable and the
	// configured fallback produced this empty result.
	Degraded bool `json:"degraded,omitempty"`
}

// emptyResult returns a well-formed empty search result for the query.
func emptyResult(query string) *GraphSearchResult {
	return &GraphSearchResult{
		Query:           query,
		Entities:        []MediaEntity{},
		Relationships:   []Relationship{},
		RelevanceScores: map[string]float64{},
		Context:         map[string]interface{}{},
	}
}

// addEntitiesRequest is the wire payload of an entity submission.
type addEntitiesRequest struct {
	MediaID    string        `json:"media_id"`
	Entities   []MediaEntity `json:"entities"`
	AutoRelate bool          `json:"auto_relate"`
}

// searchRequest is the wire payload of a graph search.
type searchRequest struct {
	Query   string                 `json:"query"`
	Depth   int                    `json:"depth"`
	Limit   int                    `json:"limit"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}
