package dedup

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const indexSchemaVersion = "2.0"

type IndexMetadata struct {
	SchemaVersion string    `json:"schemaVersion"`
	LastUpdated   time.Time `json:"lastUpdated"`
	TotalDates    int       `json:"totalDates"`
	TotalMatches  int       `json:"totalMatches"`
}

// Index is the durable ground truth for "already accepted": match ids
// grouped by dateKey. It only shrinks through retention pruning.
type Index struct {
	Metadata         IndexMetadata       `json:"metadata"`
	ProcessedMatches map[string][]string `json:"processedMatches"`
}

func newIndex() *Index {
	return &Index{
		Metadata:         IndexMetadata{SchemaVersion: indexSchemaVersion},
		ProcessedMatches: make(map[string][]string),
	}
}

func decodeIndex(data []byte) (*Index, error) {
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("failed to decode dedup index: %w", err)
	}
	if ix.ProcessedMatches == nil {
		ix.ProcessedMatches = make(map[string][]string)
	}
	return &ix, nil
}

// encode refreshes the metadata counters and serializes with sorted id
// lists so successive writes of the same state are byte-identical.
func (ix *Index) encode(now time.Time) ([]byte, error) {
	total := 0
	for key, ids := range ix.ProcessedMatches {
		sort.Strings(ids)
		ix.ProcessedMatches[key] = ids
		total += len(ids)
	}

	ix.Metadata.SchemaVersion = indexSchemaVersion
	ix.Metadata.LastUpdated = now.UTC()
	ix.Metadata.TotalDates = len(ix.ProcessedMatches)
	ix.Metadata.TotalMatches = total

	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode dedup index: %w", err)
	}
	return data, nil
}

func (ix *Index) ids(dateKey string) map[string]struct{} {
	ids := make(map[string]struct{}, len(ix.ProcessedMatches[dateKey]))
	for _, id := range ix.ProcessedMatches[dateKey] {
		ids[id] = struct{}{}
	}
	return ids
}

// merge adds the given ids under dateKey and reports how many were new.
func (ix *Index) merge(dateKey string, ids map[string]struct{}) int {
	existing := ix.ids(dateKey)
	added := 0
	for id := range ids {
		if _, ok := existing[id]; ok {
			continue
		}
		ix.ProcessedMatches[dateKey] = append(ix.ProcessedMatches[dateKey], id)
		added++
	}
	return added
}

// prune drops every dateKey strictly older than cutoffKey. Lexicographic
// comparison is safe for YYYY-MM-DD keys.
func (ix *Index) prune(cutoffKey string) []string {
	var removed []string
	for key := range ix.ProcessedMatches {
		if key < cutoffKey {
			removed = append(removed, key)
			delete(ix.ProcessedMatches, key)
		}
	}
	sort.Strings(removed)
	return removed
}
