package storage

import "sort"

// generationAggregator groups scrolled points by (source, generation).
type generationAggregator struct {
	byKey map[[2]string]*GenerationInfo
}

func newGenerationAggregator() *generationAggregator {
	return &generationAggregator{byKey: make(map[[2]string]*GenerationInfo)}
}

func (a *generationAggregator) add(p Point) {
	key := [2]string{p.Source, p.Generation}
	info, ok := a.byKey[key]
	if !ok {
		info = &GenerationInfo{Source: p.Source, Generation: p.Generation, Department: p.Department}
		a.byKey[key] = info
	}
	info.Chunks++
	if p.UploadedAt.After(info.UploadedAt) {
		info.UploadedAt = p.UploadedAt
	}
}

// list returns generations sorted by source, newest first within a source.
func (a *generationAggregator) list() []GenerationInfo {
	out := make([]GenerationInfo, 0, len(a.byKey))
	for _, info := range a.byKey {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].Generation < out[j].Generation
	})
	return out
}
