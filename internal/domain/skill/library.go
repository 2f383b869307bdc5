package skill

import (
	"strings"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// systemSkill is the static definition of a built-in skill.
type systemSkill struct {
	key         string
	name        string
	emoji       string
	description string
	category    Category
	positive    bool
	points      [3]int // default, min, max
	keywords    []string
	phrases     []string
	context     []string
	confidence  float64
}

var systemSkills = []systemSkill{
	{
		key:         "kind-hearts",
		name:        "Kind Hearts",
		emoji:       "💖",
		description: "Showing kindness and care towards others",
		category:    CategoryKindness,
		positive:    true,
		points:      [3]int{1, 1, 3},
		keywords:    []string{"kind", "kindness", "caring", "gentle", "shared"},
		phrases:     []string{"helped a friend", "was kind to", "shared with", "comforted a"},
		context:     []string{"friend", "classmate", "upset", "sad"},
		confidence:  0.15,
	},
	{
		key:         "team-player",
		name:        "Team Player",
		emoji:       "🤝",
		description: "Working well with others towards a shared goal",
		category:    CategoryTeamwork,
		positive:    true,
		points:      [3]int{1, 1, 3},
		keywords:    []string{"together", "team", "teamwork", "cooperated", "collaborated"},
		phrases:     []string{"worked together", "took turns", "helped the group", "worked as a team"},
		context:     []string{"group", "partner", "project"},
		confidence:  0.15,
	},
	{
		key:         "never-give-up",
		name:        "Never Give Up",
		emoji:       "💪",
		description: "Keeping going when something is hard",
		category:    CategoryPerseverance,
		positive:    true,
		points:      [3]int{2, 1, 5},
		keywords:    []string{"persevered", "persistent", "determined", "tried", "kept"},
		phrases:     []string{"kept trying", "did not give up", "didn't give up", "tried again"},
		context:     []string{"difficult", "hard", "challenge", "mistake"},
		confidence:  0.15,
	},
	{
		key:         "curious-mind",
		name:        "Curious Mind",
		emoji:       "🔍",
		description: "Asking questions and exploring new ideas",
		category:    CategoryCuriosity,
		positive:    true,
		points:      [3]int{1, 1, 3},
		keywords:    []string{"curious", "wondered", "explored", "question", "investigated"},
		phrases:     []string{"asked a question", "asked why", "wanted to know", "found out"},
		context:     []string{"science", "book", "experiment", "discovery"},
		confidence:  0.15,
	},
	{
		key:         "responsible-explorer",
		name:        "Responsible Explorer",
		emoji:       "🎒",
		description: "Taking care of belongings, tasks and the classroom",
		category:    CategoryResponsibility,
		positive:    true,
		points:      [3]int{1, 1, 3},
		keywords:    []string{"tidied", "cleaned", "responsible", "organized", "remembered"},
		phrases:     []string{"cleaned up", "put away", "tidied up", "finished on time"},
		context:     []string{"classroom", "homework", "materials"},
		confidence:  0.2,
	},
	{
		key:         "creative-spark",
		name:        "Creative Spark",
		emoji:       "🎨",
		description: "Imaginative ideas and original work",
		category:    CategoryCreativity,
		positive:    true,
		points:      [3]int{1, 1, 3},
		keywords:    []string{"creative", "imaginative", "invented", "designed", "original"},
		phrases:     []string{"came up with", "new idea", "made up a"},
		context:     []string{"art", "story", "drawing", "music"},
		confidence:  0.15,
	},
	{
		key:         "active-participant",
		name:        "Active Participant",
		emoji:       "🙋",
		description: "Joining in and contributing to class",
		category:    CategoryParticipation,
		positive:    true,
		points:      [3]int{1, 1, 2},
		keywords:    []string{"participated", "volunteered", "contributed", "answered", "shared"},
		phrases:     []string{"raised their hand", "raised her hand", "raised his hand", "joined in"},
		context:     []string{"discussion", "circle", "lesson"},
		confidence:  0.15,
	},
	{
		key:         "listening-ears",
		name:        "Listening Ears",
		emoji:       "👂",
		description: "Listening carefully to teachers and peers",
		category:    CategoryParticipation,
		positive:    true,
		points:      [3]int{1, 1, 2},
		keywords:    []string{"listened", "attentive", "focused", "quiet"},
		phrases:     []string{"listened carefully", "followed instructions", "paid attention"},
		context:     []string{"story time", "instructions", "carpet"},
		confidence:  0.2,
	},
	{
		key:         "needs-focus",
		name:        "Needs Focus",
		emoji:       "🎯",
		description: "Reminder to stay on task",
		category:    CategoryConstructive,
		positive:    false,
		points:      [3]int{-1, -2, -1},
		keywords:    []string{"distracted", "off-task", "unfocused"},
		phrases:     []string{"not listening", "off task"},
		context:     []string{"lesson", "reminder"},
		confidence:  0.25,
	},
	{
		key:         "respect-others",
		name:        "Respect Others",
		emoji:       "🛑",
		description: "Reminder to treat others with respect",
		category:    CategoryConstructive,
		positive:    false,
		points:      [3]int{-1, -3, -1},
		keywords:    []string{"rude", "interrupted", "pushed", "unkind"},
		phrases:     []string{"took without asking", "called names"},
		context:     []string{"playground", "line"},
		confidence:  0.25,
	},
}

// SystemSkillID returns the stable identifier of a built-in skill.
func SystemSkillID(key string) string {
	return "system:" + key
}

// DefaultLibrary returns the built-in system skill catalog for a tenant.
// System skills are shared across schools: SchoolID and ClassroomID stay empty.
func DefaultLibrary(tenantID string, now time.Time) []*Skill {
	out := make([]*Skill, 0, len(systemSkills))
	for _, def := range systemSkills {
		out = append(out, &Skill{
			ID:            SystemSkillID(def.key),
			TenantID:      tenantID,
			Name:          def.name,
			Emoji:         def.emoji,
			Description:   def.description,
			Category:      def.category,
			IsPositive:    def.positive,
			DefaultPoints: def.points[0],
			MinPoints:     def.points[1],
			MaxPoints:     def.points[2],
			AgeBands:      append([]AgeBand(nil), AllAgeBands...),
			Scoring: Scoring{
				TriggerKeywords:       append([]string(nil), def.keywords...),
				ObservationPhrases:    append([]string(nil), def.phrases...),
				ContextIndicators:     append([]string(nil), def.context...),
				AutoSuggestConfidence: def.confidence,
			},
			IsActive:  true,
			IsSystem:  true,
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		})
	}
	return out
}

// InScope reports whether the skill is visible in the given scope:
// system skills everywhere in the tenant, school skills in that school,
// classroom skills only in that classroom.
func (s *Skill) InScope(scope shared.Scope) bool {
	if s.TenantID != "" && scope.TenantID != "" && s.TenantID != scope.TenantID {
		return false
	}
	if s.SchoolID != "" && s.SchoolID != scope.SchoolID {
		return false
	}
	if s.ClassroomID != "" && s.ClassroomID != scope.ClassroomID {
		return false
	}
	return true
}

// FindByName returns the first skill whose name matches case-insensitively.
func FindByName(skills []*Skill, name string) *Skill {
	name = strings.TrimSpace(name)
	for _, s := range skills {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}
