package memory

import "github.com/kgraphio/tempomem-go/pkg/storage"

// QueryContext is the context bundle handed to callers (and the retrieval
// adapter) for query augmentation.
type QueryContext struct {
	// PreferredTypes lists interaction kinds by observed frequency,
	// most frequent first.
	PreferredTypes []string `json:"preferred_types"`

	// TopResources lists the user's most recently used resources,
	// most recent first.
	TopResources []string `json:"top_resources"`

	// RecentPatterns holds up to five of the most recently learned
	// search tokens.
	RecentPatterns []string `json:"recent_patterns"`

	// ContextHints are human-readable hints derived from the static
	// context, for example "User role: analyst".
	ContextHints []string `json:"context_hints"`
}

// RelatedMemory is one entry in a related-memories ranking.
type RelatedMemory struct {
	Content string             `json:"content"`
	Weight  float64            `json:"weight"`
	Type    storage.EntityType `json:"type"`
}

// EvolveResult summarizes one knowledge-evolution pass.
type EvolveResult struct {
	// Reinforced is the number of events boosted by the pass.
	Reinforced int `json:"reinforced"`

	// Pruned is the number of events removed by the pruning sweep.
	Pruned int `json:"pruned"`

	// PatternsLearned is the net change in the user's search pattern
	// list size. Negative when deduplication shrank the list.
	PatternsLearned int `json:"patterns_learned"`
}
