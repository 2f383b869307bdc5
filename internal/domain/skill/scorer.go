package skill

import "strings"

// Scoring weights. Phrases are stronger signals than bare keywords.
const (
	KeywordWeight = 1.0
	PhraseWeight  = 2.0
	ContextWeight = 0.5
)

// Match is the result of scoring one observation against one skill.
type Match struct {
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
	Phrases    []string `json:"phrases,omitempty"`
	Context    []string `json:"context,omitempty"`
}

// HasHits returns true if anything matched.
func (m Match) HasHits() bool {
	return len(m.Keywords) > 0 || len(m.Phrases) > 0 || len(m.Context) > 0
}

// MatchObservation scores text against the skill's scoring configuration.
// confidence = weighted hits / weighted maximum, or 0 when the skill has
// no scoring terms. Pure function of its inputs.
func MatchObservation(text string, s *Skill) Match {
	if s == nil {
		return Match{}
	}
	normalized := strings.ToLower(text)

	var m Match
	var hits, maxPossible float64

	for _, kw := range s.Scoring.TriggerKeywords {
		maxPossible += KeywordWeight
		if containsTerm(normalized, kw) {
			hits += KeywordWeight
			m.Keywords = append(m.Keywords, kw)
		}
	}
	for _, ph := range s.Scoring.ObservationPhrases {
		maxPossible += PhraseWeight
		if containsTerm(normalized, ph) {
			hits += PhraseWeight
			m.Phrases = append(m.Phrases, ph)
		}
	}
	for _, ci := range s.Scoring.ContextIndicators {
		maxPossible += ContextWeight
		if containsTerm(normalized, ci) {
			hits += ContextWeight
			m.Context = append(m.Context, ci)
		}
	}

	if maxPossible > 0 {
		m.Confidence = hits / maxPossible
	}
	return m
}

// Score returns only the confidence of MatchObservation.
func Score(text string, s *Skill) float64 {
	return MatchObservation(text, s).Confidence
}

func containsTerm(normalized, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	return strings.Contains(normalized, term)
}
