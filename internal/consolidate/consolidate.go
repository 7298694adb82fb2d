// Package consolidate implements memctl's deterministic STM -> MTM -> LTM
// promotion pipeline: cluster short-term items by type and tag overlap,
// merge each cluster into one canonical item, archive the originals, and
// promote high-usage merged items onward. No LLM calls, no embeddings —
// running it twice over the same store produces identical results.
package consolidate

import (
	"log"
	"sort"
	"strings"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/store"
)

// MergeChain describes one cluster's outcome: the merged item id (empty
// under DryRun) plus the source items it was built from.
type MergeChain struct {
	MergedID     string   `json:"merged_id,omitempty"`
	SourceIDs    []string `json:"source_ids"`
	SourceTitles []string `json:"source_titles"`
	DryRun       bool     `json:"dry_run,omitempty"`
}

// Stats summarizes one Run call.
type Stats struct {
	ItemsProcessed int          `json:"items_processed"`
	ClustersFound  int          `json:"clusters_found"`
	ItemsMerged    int          `json:"items_merged"`
	ItemsPromoted  int          `json:"items_promoted"`
	MergeChains    []MergeChain `json:"merge_chains"`
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	union := map[string]bool{}
	for k := range a {
		union[k] = true
	}
	for k := range b {
		union[k] = true
	}
	if len(union) == 0 {
		return 0.0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	return float64(inter) / float64(len(union))
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[strings.ToLower(t)] = true
	}
	return set
}

// coarseCluster groups items sharing a type and a tag-Jaccard similarity
// at or above (1 - distanceThreshold), via a greedy single pass per type.
func coarseCluster(items []*memtypes.Item, distanceThreshold float64) [][]*memtypes.Item {
	similarityThreshold := 1.0 - distanceThreshold

	byType := map[memtypes.MemoryType][]*memtypes.Item{}
	var typeOrder []memtypes.MemoryType
	for _, it := range items {
		if _, ok := byType[it.Type]; !ok {
			typeOrder = append(typeOrder, it.Type)
		}
		byType[it.Type] = append(byType[it.Type], it)
	}

	var clusters [][]*memtypes.Item
	for _, typ := range typeOrder {
		typeItems := byType[typ]
		assigned := map[string]bool{}
		for i, a := range typeItems {
			if assigned[a.ID] {
				continue
			}
			cluster := []*memtypes.Item{a}
			assigned[a.ID] = true
			tagsA := tagSet(a.Tags)
			for j := i + 1; j < len(typeItems); j++ {
				b := typeItems[j]
				if assigned[b.ID] {
					continue
				}
				if jaccard(tagsA, tagSet(b.Tags)) >= similarityThreshold {
					cluster = append(cluster, b)
					assigned[b.ID] = true
				}
			}
			if len(cluster) >= 2 {
				clusters = append(clusters, cluster)
			}
		}
	}
	return clusters
}

// deterministicMerge combines cluster into one canonical item. The winner
// (whose type/title/content/validation/scope/corpus/injectable the merged
// item inherits) is chosen by longest content, tie-broken by earliest
// created_at, then lexicographic id.
func deterministicMerge(cluster []*memtypes.Item) *memtypes.Item {
	sorted := make([]*memtypes.Item, len(cluster))
	copy(sorted, cluster)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := len(sorted[i].Content), len(sorted[j].Content)
		if li != lj {
			return li > lj
		}
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})
	winner := sorted[0]

	var allTags, allEntities []string
	seenTags, seenEntities := map[string]bool{}, map[string]bool{}
	maxConfidence := 0.0
	totalUsage := 0
	chunkIDs := make([]string, 0, len(cluster))

	for _, it := range cluster {
		for _, tag := range it.Tags {
			key := strings.ToLower(tag)
			if !seenTags[key] {
				seenTags[key] = true
				allTags = append(allTags, tag)
			}
		}
		for _, ent := range it.Entities {
			key := strings.ToLower(ent)
			if !seenEntities[key] {
				seenEntities[key] = true
				allEntities = append(allEntities, ent)
			}
		}
		if it.Confidence > maxConfidence {
			maxConfidence = it.Confidence
		}
		totalUsage += it.UsageCount
		chunkIDs = append(chunkIDs, it.ID)
	}

	merged := memtypes.NewItem()
	merged.Tier = memtypes.TierMTM
	merged.Type = winner.Type
	merged.Title = winner.Title
	merged.Content = winner.Content
	merged.Tags = allTags
	merged.Entities = allEntities
	merged.Provenance = memtypes.Provenance{
		SourceKind:    memtypes.SourceTool,
		SourceID:      "memctl-consolidate",
		ChunkIDs:      chunkIDs,
		ContentHashes: nil,
		CreatedAt:     merged.Provenance.CreatedAt,
	}
	merged.Confidence = maxConfidence
	merged.Validation = winner.Validation
	merged.Scope = winner.Scope
	merged.UsageCount = totalUsage
	merged.CorpusID = winner.CorpusID
	merged.Injectable = winner.Injectable
	return merged
}

// Pipeline runs deterministic consolidation against a store.
type Pipeline struct {
	s   *store.Store
	cfg *config.ConsolidateConfig
}

// New builds a Pipeline (config.Default().Consolidate if cfg is nil).
func New(s *store.Store, cfg *config.ConsolidateConfig) *Pipeline {
	if cfg == nil {
		def := config.Default().Consolidate
		cfg = &def
	}
	return &Pipeline{s: s, cfg: cfg}
}

// Run clusters eligible STM items in scope, merges each cluster, archives
// the originals with a supersedes link to the merge, and promotes
// qualifying MTM items to LTM. dryRun computes clusters without writing.
func (p *Pipeline) Run(scope string, dryRun bool) (*Stats, error) {
	stats := &Stats{}

	items, err := p.s.ListItems(store.SearchOptions{Tier: string(memtypes.TierSTM), Scope: scope, ExcludeArchived: true, Limit: 5000})
	if err != nil {
		return nil, err
	}
	stats.ItemsProcessed = len(items)
	if len(items) < 2 {
		log.Printf("[consolidate] only %d item(s), skipping", len(items))
		return stats, nil
	}

	clusters := coarseCluster(items, p.cfg.ClusterDistanceThreshold)
	stats.ClustersFound = len(clusters)
	if len(clusters) == 0 {
		log.Printf("[consolidate] no clusters found")
		return stats, nil
	}

	if dryRun {
		for _, cluster := range clusters {
			chain := MergeChain{DryRun: true}
			for _, it := range cluster {
				chain.SourceIDs = append(chain.SourceIDs, it.ID)
				chain.SourceTitles = append(chain.SourceTitles, it.Title)
			}
			stats.MergeChains = append(stats.MergeChains, chain)
		}
		return stats, nil
	}

	for _, cluster := range clusters {
		merged := deterministicMerge(cluster)
		if err := p.s.WriteItem(merged, "consolidate"); err != nil {
			return nil, err
		}

		chain := MergeChain{MergedID: merged.ID}
		for _, original := range cluster {
			if err := p.s.WriteLink(&memtypes.StoredLink{SrcID: merged.ID, DstID: original.ID, Rel: "supersedes"}); err != nil {
				return nil, err
			}
			if err := p.s.SupersedeItem(original.ID, merged.ID); err != nil {
				return nil, err
			}
			chain.SourceIDs = append(chain.SourceIDs, original.ID)
			chain.SourceTitles = append(chain.SourceTitles, original.Title)
		}
		stats.ItemsMerged += len(cluster)
		stats.MergeChains = append(stats.MergeChains, chain)
	}

	mtmItems, err := p.s.ListItems(store.SearchOptions{Tier: string(memtypes.TierMTM), Scope: scope, ExcludeArchived: true, Limit: 5000})
	if err != nil {
		return nil, err
	}
	autoPromote := make(map[string]bool, len(p.cfg.AutoPromoteTypes))
	for _, t := range p.cfg.AutoPromoteTypes {
		autoPromote[t] = true
	}
	for _, it := range mtmItems {
		promote := it.UsageCount >= p.cfg.UsageCountForLTM || autoPromote[string(it.Type)]
		if promote {
			if err := p.s.UpdateItem(it.ID, map[string]any{"tier": string(memtypes.TierLTM)}); err != nil {
				return nil, err
			}
			stats.ItemsPromoted++
		}
	}

	log.Printf("[consolidate] complete: %d clusters, %d merged, %d promoted",
		stats.ClustersFound, stats.ItemsMerged, stats.ItemsPromoted)
	return stats, nil
}
