package templatestore

import "github.com/pipelineforge/pipelineforge/pkg/domain"

// RankWeight is the W factor in the proven-template ranking formula:
// score = success_count * W - last_build_duration_seconds.
const RankWeight = 100.0

// score computes a single record's ranking value. A nil LastBuildDuration
// contributes no penalty.
func score(rec domain.TemplateRecord) float64 {
	s := float64(rec.Metadata.SuccessCount) * RankWeight
	if rec.Metadata.LastBuildDuration != nil {
		s -= rec.Metadata.LastBuildDuration.Seconds()
	}
	return s
}

// highestScoring returns the best-scoring record in records, or false if
// records is empty.
func highestScoring(records []domain.TemplateRecord) (domain.TemplateRecord, bool) {
	if len(records) == 0 {
		return domain.TemplateRecord{}, false
	}
	best := records[0]
	bestScore := score(best)
	for _, rec := range records[1:] {
		if s := score(rec); s > bestScore {
			best, bestScore = rec, s
		}
	}
	return best, true
}
