// Package graph adapts the memory layer to an external media knowledge-graph
// service over HTTP.
//
// The adapter decorates graph searches with the user's accumulated context,
// re-weights search results by the temporal relevance of the user's stored
// memories, and feeds graph-level usefulness signals back into the decay
// model. The graph service itself is an opaque upstream; when it is
// unreachable the adapter can degrade to well-formed empty results instead
// of failing the caller.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/kgraphio/tempomem-go/pkg/decay"
	"github.com/kgraphio/tempomem-go/pkg/memory"
)

// ErrUpstreamUnavailable indicates the graph service could not be reached or
// returned a server error. Returned only when fallback is disabled.
var ErrUpstreamUnavailable = errors.New("graph service unavailable")

// Timeouts and search defaults.
const (
	DefaultSearchTimeout = 10 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultSearchDepth   = 2
	DefaultSearchLimit   = 20

	// neutralWeight is the temporal factor applied to entities the user
	// has no stored memory of.
	neutralWeight = 0.5

	// contextMemoryLimit is how many related memories are folded into a
	// context-augmented query.
	contextMemoryLimit = 3
)

// Config configures the graph adapter.
type Config struct {
	// BaseURL is the graph service endpoint, for example
	// "http://localhost:8000".
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// SearchTimeout bounds search calls; WriteTimeout bounds entity
	// submissions. Zero values take the package defaults.
	SearchTimeout time.Duration
	WriteTimeout  time.Duration

	// FallbackOnError makes searches degrade to an empty result instead
	// of returning ErrUpstreamUnavailable.
	FallbackOnError bool

	// TemporalWeighting enables re-ranking of search results by the
	// user's memory weights.
	TemporalWeighting bool

	// DefaultDepth and DefaultLimit apply to searches that do not
	// specify their own.
	DefaultDepth int
	DefaultLimit int

	// HTTPClient overrides the adapter's HTTP client. Timeouts are
	// still enforced per call through the request context.
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.DefaultDepth <= 0 {
		c.DefaultDepth = DefaultSearchDepth
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultSearchLimit
	}
	return c
}

// Adapter bridges user memory and the graph service.
//
// Example:
//
//	adapter, _ := graph.NewAdapter(graph.Config{
//	    BaseURL:           "http://localhost:8000",
//	    TemporalWeighting: true,
//	    FallbackOnError:   true,
//	}, client)
//	result, _ := adapter.Query(ctx, "user_001", "red car at intersection")
type Adapter struct {
	config Config
	memory *memory.Client
	client *http.Client
	node   *snowflake.Node
}

// NewAdapter creates a graph adapter over the given memory client.
func NewAdapter(config Config, memoryClient *memory.Client) (*Adapter, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("graph: base URL is required")
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		return nil, err
	}

	config = config.withDefaults()
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Adapter{
		config: config,
		memory: memoryClient,
		client: httpClient,
		node:   node,
	}, nil
}

// SearchOptions carries the optional parameters of Query.
type SearchOptions struct {
	Depth int
	Limit int

	// IncludeUserContext enables personalization: the user's query
	// context is gathered, preferred types are folded into the filters,
	// and the query is recorded as an interaction.
	IncludeUserContext bool
}

// SearchOption configures a Query call.
type SearchOption func(*SearchOptions)

// WithSearchDepth sets the graph traversal depth.
func WithSearchDepth(depth int) SearchOption {
	return func(o *SearchOptions) {
		o.Depth = depth
	}
}

// WithSearchLimit caps the number of returned entities.
func WithSearchLimit(limit int) SearchOption {
	return func(o *SearchOptions) {
		o.Limit = limit
	}
}

// WithUserContext turns on personalization for the search.
// QueryWithContext forces it on.
func WithUserContext() SearchOption {
	return func(o *SearchOptions) {
		o.IncludeUserContext = true
	}
}

// AddToGraph submits extracted media entities to the graph service.
//
// Entities without an ID are assigned one locally and the ID-stamped records
// are returned, so the caller can correlate them with later search results
// immediately. The submission always requests automatic relationship
// inference.
func (a *Adapter) AddToGraph(ctx context.Context, mediaID string, entities []MediaEntity) ([]MediaEntity, error) {
	if mediaID == "" || len(entities) == 0 {
		return nil, memory.ErrInvalidInput
	}

	payload := addEntitiesRequest{
		MediaID:    mediaID,
		Entities:   make([]MediaEntity, len(entities)),
		AutoRelate: true,
	}
	for i, entity := range entities {
		if entity.ID == "" {
			entity.ID = a.node.Generate().String()
		}
		entity.AutoRelate = true
		payload.Entities[i] = entity
	}

	callCtx, cancel := context.WithTimeout(ctx, a.config.WriteTimeout)
	defer cancel()

	if err := a.post(callCtx, "/api/v1/graph/entities", payload, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return payload.Entities, nil
}

// Query runs a graph search, optionally personalized for the user.
//
// With WithUserContext set, the user's query context is gathered and the
// query recorded as an interaction before any network I/O, so memory state
// advances even when the upstream is down; preferred interaction kinds are
// folded into the search filters and the result's Context summarizes which
// preferred types and recent patterns influenced the call. Without it, the
// search goes out untouched and no interaction is recorded.
//
// When temporal weighting is enabled, returned entities are re-scored by the
// effective weight of the user's memories of them (neutral 0.5 for entities
// with no memory) and re-sorted. Upstream relevance scores delivered through
// the relevance_scores map seed the entity scores first.
//
// When the upstream fails: with FallbackOnError set, a well-formed empty
// result with Degraded set is returned; otherwise the error wraps
// ErrUpstreamUnavailable.
func (a *Adapter) Query(ctx context.Context, userID, query string, opts ...SearchOption) (*GraphSearchResult, error) {
	options := &SearchOptions{Depth: a.config.DefaultDepth, Limit: a.config.DefaultLimit}
	for _, opt := range opts {
		opt(options)
	}

	var queryContext *memory.QueryContext
	if options.IncludeUserContext && userID != "" {
		var err error
		queryContext, err = a.memory.GetQueryContext(ctx, userID)
		if err != nil {
			return nil, err
		}
		if _, err := a.memory.RecordQuery(ctx, userID, query, memory.WithDepth(options.Depth)); err != nil {
			return nil, err
		}
	}

	request := searchRequest{
		Query: query,
		Depth: options.Depth,
		Limit: options.Limit,
	}
	if queryContext != nil && len(queryContext.PreferredTypes) > 0 {
		request.Filters = map[string]interface{}{
			"preferred_types": queryContext.PreferredTypes,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.config.SearchTimeout)
	defer cancel()

	result := emptyResult(query)
	if err := a.post(callCtx, "/api/v1/graph/search", request, result); err != nil {
		if a.config.FallbackOnError {
			log.Printf("[graph] search degraded, returning empty result: %v", err)
			fallback := emptyResult(query)
			fallback.Degraded = true
			return fallback, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	normalizeResult(result, query)
	if queryContext != nil {
		summarizeContext(result, queryContext)
	}

	if a.config.TemporalWeighting && userID != "" && len(result.Entities) > 0 {
		weights, err := a.memory.EntityWeights(ctx, userID)
		if err != nil {
			return nil, err
		}
		reweight(result.Entities, result.RelevanceScores, weights)
	}

	return result, nil
}

// QueryWithContext runs a session-scoped, memory-augmented graph search.
//
// A session is started for the user (replacing any existing one), up to
// three related memories are appended to the query as a context suffix, and
// the augmented query is searched with personalization forced on.
func (a *Adapter) QueryWithContext(ctx context.Context, userID, query string, opts ...SearchOption) (*GraphSearchResult, error) {
	if err := a.memory.StartSession(ctx, userID); err != nil {
		return nil, err
	}

	augmented := query
	related, err := a.memory.GetRelatedMemories(ctx, userID, query, contextMemoryLimit)
	if err != nil {
		return nil, err
	}
	if len(related) > 0 {
		contents := make([]string, len(related))
		for i, mem := range related {
			contents[i] = mem.Content
		}
		augmented = query + " (context: " + strings.Join(contents, "; ") + ")"
	}

	return a.Query(ctx, userID, augmented, append(opts, WithUserContext())...)
}

// Evolve reinforces every stored memory of an entity, across users. Called
// when the graph layer observes the entity being useful.
//
// Returns the number of events reinforced.
func (a *Adapter) Evolve(ctx context.Context, entityID string) (int, error) {
	return a.memory.ReinforceEntity(ctx, entityID)
}

// Prune removes expired and decayed-out events from storage.
func (a *Adapter) Prune(ctx context.Context) (*decay.PruneResult, error) {
	return a.memory.Prune(ctx)
}

// post issues a JSON POST to the graph service and decodes the response into
// out when out is non-nil.
func (a *Adapter) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimRight(a.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// normalizeResult replaces nil collections with empty ones and stamps the
// original query so the result shape is uniform for callers.
func normalizeResult(result *GraphSearchResult, query string) {
	result.Query = query
	if result.Entities == nil {
		result.Entities = []MediaEntity{}
	}
	if result.Relationships == nil {
		result.Relationships = []Relationship{}
	}
	if result.Context == nil {
		result.Context = map[string]interface{}{}
	}
	if result.RelevanceScores == nil {
		result.RelevanceScores = map[string]float64{}
	}
}

// summarizeContext records which parts of the user's query context shaped
// the search.
func summarizeContext(result *GraphSearchResult, queryContext *memory.QueryContext) {
	if len(queryContext.PreferredTypes) > 0 {
		result.Context["preferred_types"] = queryContext.PreferredTypes
	}
	if len(queryContext.RecentPatterns) > 0 {
		result.Context["recent_patterns"] = queryContext.RecentPatterns
	}
}

// reweight multiplies entity scores by the user's memory weight for each
// entity, neutral 0.5 when absent, then re-sorts by adjusted score. Scores
// delivered only through the relevance map seed the entity scores first.
func reweight(entities []MediaEntity, scores map[string]float64, weights map[string]float64) {
	for i := range entities {
		if s, ok := scores[entities[i].ID]; ok {
			entities[i].Score = s
		}
		factor := neutralWeight
		if weight, ok := weights[entities[i].ID]; ok {
			factor = weight
		}
		entities[i].Score *= factor
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Score > entities[j].Score
	})
}
