package suggestion

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
)

// GeneratorConfig holds the ranking and pattern-detection knobs.
type GeneratorConfig struct {
	// MaxSuggestions caps the number of drafts returned.
	MaxSuggestions int

	// MaxAlternatives caps runner-up skills per draft.
	MaxAlternatives int

	// AlternativeThreshold is the minimum confidence for a runner-up.
	AlternativeThreshold float64

	// PatternMinAwards is the minimum recent-award count before patterns are reported.
	PatternMinAwards int

	// PatternShare is the share of recent awards one skill (or learner) must reach.
	PatternShare float64
}

// DefaultGeneratorConfig returns the standard generator configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxSuggestions:       5,
		MaxAlternatives:      3,
		AlternativeThreshold: 0.5,
		PatternMinAwards:     5,
		PatternShare:         0.4,
	}
}

// Input is one generation request.
type Input struct {
	Observation  string
	Candidates   []*learner.Learner
	Library      []*skill.Skill
	RecentAwards []*award.PointAward

	// MaxSuggestions overrides the configured cap when positive.
	MaxSuggestions int
}

// Draft is an unsaved suggestion. All named learners share one draft per skill.
type Draft struct {
	SkillID            string
	SkillName          string
	SkillEmoji         string
	StudentIDs         []string
	Points             int
	Confidence         float64
	DetectedBehaviours []string
	Alternatives       []Alternative
	Reasoning          string
}

// Output is the generator result.
type Output struct {
	Drafts       []Draft
	NamedStudent []string
	Patterns     []string
}

// Generator ranks library skills against an observation.
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator creates a Generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	def := DefaultGeneratorConfig()
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = def.MaxSuggestions
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = def.MaxAlternatives
	}
	if cfg.AlternativeThreshold <= 0 {
		cfg.AlternativeThreshold = def.AlternativeThreshold
	}
	if cfg.PatternMinAwards <= 0 {
		cfg.PatternMinAwards = def.PatternMinAwards
	}
	if cfg.PatternShare <= 0 {
		cfg.PatternShare = def.PatternShare
	}
	return &Generator{cfg: cfg}
}

type scored struct {
	skill *skill.Skill
	match skill.Match
}

// Generate scores every active skill and returns ranked drafts of the
// positive ones.
// An observation that names no candidate learner yields no drafts.
func (g *Generator) Generate(in Input) Output {
	out := Output{Patterns: g.detectPatterns(in.RecentAwards)}

	named := NamedLearners(in.Observation, in.Candidates)
	for _, l := range named {
		out.NamedStudent = append(out.NamedStudent, l.ID)
	}

	// Every active skill is scored so constructive ones can show up as
	// alternatives; only positive ones become drafts.
	var candidates []scored
	for _, s := range in.Library {
		if !s.IsActive {
			continue
		}
		candidates = append(candidates, scored{skill: s, match: skill.MatchObservation(in.Observation, s)})
	}
	sortScored(candidates)

	if len(named) == 0 {
		return out
	}

	for _, c := range candidates {
		if !c.skill.IsSuggestable() || !c.match.HasHits() || c.match.Confidence < c.skill.Scoring.AutoSuggestConfidence {
			continue
		}
		out.Drafts = append(out.Drafts, Draft{
			SkillID:            c.skill.ID,
			SkillName:          c.skill.Name,
			SkillEmoji:         c.skill.Emoji,
			StudentIDs:         append([]string(nil), out.NamedStudent...),
			Points:             c.skill.DefaultPoints,
			Confidence:         c.match.Confidence,
			DetectedBehaviours: detected(c.match),
			Alternatives:       g.alternatives(c.skill.ID, candidates),
			Reasoning:          reasoning(named, c),
		})
	}

	limit := g.cfg.MaxSuggestions
	if in.MaxSuggestions > 0 {
		limit = in.MaxSuggestions
	}
	if len(out.Drafts) > limit {
		out.Drafts = out.Drafts[:limit]
	}
	return out
}

// alternatives returns up to MaxAlternatives other active skills, positive or
// constructive, above the threshold.
// candidates is already sorted by confidence.
func (g *Generator) alternatives(skillID string, candidates []scored) []Alternative {
	var out []Alternative
	for _, c := range candidates {
		if len(out) == g.cfg.MaxAlternatives {
			break
		}
		if c.skill.ID == skillID || c.match.Confidence < g.cfg.AlternativeThreshold {
			continue
		}
		out = append(out, Alternative{SkillID: c.skill.ID, SkillName: c.skill.Name, Confidence: c.match.Confidence})
	}
	return out
}

// detectPatterns flags a skill or a learner dominating the recent awards.
// Patterns are advisory and never block generation.
func (g *Generator) detectPatterns(recent []*award.PointAward) []string {
	total := len(recent)
	if total < g.cfg.PatternMinAwards {
		return nil
	}

	skillCounts := map[string]int{}
	skillNames := map[string]string{}
	studentCounts := map[string]int{}
	studentNames := map[string]string{}
	for _, a := range recent {
		skillCounts[a.SkillID]++
		skillNames[a.SkillID] = a.SkillName
		studentCounts[a.StudentID]++
		studentNames[a.StudentID] = a.StudentName
	}

	var patterns []string
	if id, n := dominant(skillCounts); float64(n) >= g.cfg.PatternShare*float64(total) {
		patterns = append(patterns, fmt.Sprintf(
			"%s accounts for %d%% of recent awards (%d of %d); consider recognising other skills",
			skillNames[id], n*100/total, n, total))
	}
	if len(studentCounts) > 1 {
		if id, n := dominant(studentCounts); float64(n) >= g.cfg.PatternShare*float64(total) {
			name := studentNames[id]
			if name == "" {
				name = id
			}
			patterns = append(patterns, fmt.Sprintf(
				"%s received %d of the last %d awards; check that recognition is shared across the class",
				name, n, total))
		}
	}
	return patterns
}

// dominant returns the key with the highest count, smallest key on ties.
func dominant(counts map[string]int) (string, int) {
	var best string
	bestN := -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best, bestN
}

func sortScored(c []scored) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].match.Confidence != c[j].match.Confidence {
			return c[i].match.Confidence > c[j].match.Confidence
		}
		return c[i].skill.Name < c[j].skill.Name
	})
}

func detected(m skill.Match) []string {
	out := make([]string, 0, len(m.Keywords)+len(m.Phrases))
	out = append(out, m.Keywords...)
	out = append(out, m.Phrases...)
	return out
}

func reasoning(named []*learner.Learner, c scored) string {
	names := make([]string, 0, len(named))
	for _, l := range named {
		names = append(names, l.FirstName)
	}
	terms := detected(c.match)
	return fmt.Sprintf("%s: observation matches %s (%.0f%% confidence) on %s",
		strings.Join(names, ", "), c.skill.Name, c.match.Confidence*100, quoteAll(terms))
}

func quoteAll(terms []string) string {
	if len(terms) == 0 {
		return "context only"
	}
	q := make([]string, len(terms))
	for i, t := range terms {
		q[i] = fmt.Sprintf("%q", t)
	}
	return strings.Join(q, ", ")
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER NAMING
// ══════════════════════════════════════════════════════════════════════════════

// NamedLearners returns the candidates named in the observation by first name
// or full display name, case-insensitive, on word boundaries. Order follows
// the candidate list.
func NamedLearners(observation string, candidates []*learner.Learner) []*learner.Learner {
	text := strings.ToLower(observation)
	var out []*learner.Learner
	seen := map[string]bool{}
	for _, l := range candidates {
		if l == nil || seen[l.ID] {
			continue
		}
		if containsWord(text, strings.ToLower(l.FirstName)) || containsWord(text, strings.ToLower(l.DisplayName())) {
			seen[l.ID] = true
			out = append(out, l)
		}
	}
	return out
}

// containsWord reports whether word occurs in text with non-letter,
// non-digit runes (or text edges) on both sides.
func containsWord(text, word string) bool {
	word = strings.TrimSpace(word)
	if word == "" {
		return false
	}
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		start = i + size
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
