package papers

const (
	minimumRelevanceScoreConstant = 0.0
	maximumRelevanceScoreConstant = 10.0
)

// Hide marks the paper as hidden from listings.
func (store *Store) Hide(identifier string) (Paper, error) {
	return store.Update(identifier, func(paper *Paper) error {
		paper.IsHidden = true
		return nil
	})
}

// Unhide makes a hidden paper visible again.
func (store *Store) Unhide(identifier string) (Paper, error) {
	return store.Update(identifier, func(paper *Paper) error {
		paper.IsHidden = false
		return nil
	})
}

// ToggleStar flips the starred flag and returns the updated paper.
func (store *Store) ToggleStar(identifier string) (Paper, error) {
	return store.Update(identifier, func(paper *Paper) error {
		paper.IsStarred = !paper.IsStarred
		return nil
	})
}

// UpdateRelevance overrides the relevance verdict; the score is clamped to 0..10.
func (store *Store) UpdateRelevance(identifier string, relevant bool, score float64) (Paper, error) {
	return store.Update(identifier, func(paper *Paper) error {
		paper.IsRelevant = BoolPointer(relevant)
		paper.RelevanceScore = ClampScore(score)
		paper.UpdatedAt = FormatTimestamp(store.Now())
		return nil
	})
}

// ClampScore limits a relevance score to the 0..10 range.
func ClampScore(score float64) float64 {
	if score < minimumRelevanceScoreConstant {
		return minimumRelevanceScoreConstant
	}
	if score > maximumRelevanceScoreConstant {
		return maximumRelevanceScoreConstant
	}
	return score
}
