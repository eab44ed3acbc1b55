package ecs

import "slices"

// StorageStats is a point-in-time summary of a storage.
type StorageStats struct {
	TotalEntityCount   int
	ComponentCount     int
	RequiredRuleCount  int
	CurrentSeq         uint64
	ComponentBreakdown []ComponentStats
}

// ComponentStats counts the live slots of one component.
type ComponentStats struct {
	Name        string
	EntityCount int
}

// CollectStats summarizes the storage. Components with no live slots are
// left out of the breakdown, which is sorted by descending entity count.
func (s *Storage) CollectStats() *StorageStats {
	stats := &StorageStats{
		TotalEntityCount:  s.Len(),
		ComponentCount:    len(s.registry.infos),
		RequiredRuleCount: s.required.Len(),
		CurrentSeq:        s.seq,
	}
	for _, info := range s.registry.infos {
		col := s.peekColumn(info)
		if col == nil || col.Len() == 0 {
			continue
		}
		stats.ComponentBreakdown = append(stats.ComponentBreakdown, ComponentStats{
			Name:        info.name,
			EntityCount: col.Len(),
		})
	}
	slices.SortStableFunc(stats.ComponentBreakdown, func(a, b ComponentStats) int {
		return b.EntityCount - a.EntityCount
	})
	return stats
}
