package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL LIBRARY COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CreateCustomSkillCommand adds a teacher-owned skill to a classroom.
type CreateCustomSkillCommand struct {
	Scope     shared.Scope
	CreatedBy string
	Params    skill.CustomSkillParams
}

// CreateCustomSkillHandler handles the CreateCustomSkillCommand.
type CreateCustomSkillHandler struct {
	skills    skill.Repository
	publisher shared.EventPublisher
	ids       IDGenerator
	clock     Clock
	logger    *slog.Logger
	limit     int
}

// NewCreateCustomSkillHandler creates a new handler. limit <= 0 uses
// skill.MaxCustomSkillsPerClassroom.
func NewCreateCustomSkillHandler(skills skill.Repository, publisher shared.EventPublisher, ids IDGenerator, clock Clock, logger *slog.Logger, limit int) *CreateCustomSkillHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = skill.MaxCustomSkillsPerClassroom
	}
	return &CreateCustomSkillHandler{
		skills:    skills,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		logger:    logger.With("handler", "create_custom_skill"),
		limit:     limit,
	}
}

// Handle executes the create command.
func (h *CreateCustomSkillHandler) Handle(ctx context.Context, cmd CreateCustomSkillCommand) (*skill.Skill, error) {
	if err := cmd.Scope.Validate(); err != nil {
		return nil, fmt.Errorf("create_custom_skill: validation failed: %w", err)
	}
	if strings.TrimSpace(cmd.CreatedBy) == "" {
		return nil, fmt.Errorf("create_custom_skill: validation failed: %w",
			shared.NewDomainError("skill", "CreateCustom", shared.ErrInvalidID, "creating user is required"))
	}

	s, err := skill.NewCustomSkill(h.ids.NewID(), cmd.Scope, cmd.CreatedBy, cmd.Params, h.clock.now())
	if err != nil {
		return nil, fmt.Errorf("create_custom_skill: validation failed: %w", err)
	}

	existing, err := h.skills.ListByScope(ctx, cmd.Scope.TenantID, cmd.Scope.SchoolID, cmd.Scope.ClassroomID)
	if err != nil {
		return nil, fmt.Errorf("create_custom_skill: failed to load skills: %w", err)
	}
	if skill.FindByName(existing, s.Name) != nil {
		return nil, fmt.Errorf("create_custom_skill: %w", shared.ErrSkillAlreadyExists)
	}

	count, err := h.skills.CountCustom(ctx, cmd.Scope.ClassroomID)
	if err != nil {
		return nil, fmt.Errorf("create_custom_skill: failed to count skills: %w", err)
	}
	if count >= h.limit {
		return nil, fmt.Errorf("create_custom_skill: %w", shared.ErrCustomSkillLimit)
	}

	if err := h.skills.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create_custom_skill: %w", err)
	}

	publish(h.publisher, h.logger,
		shared.NewSkillChangedEvent(shared.EventSkillCreated, cmd.Scope, s.ID, s.Name, s.IsActive, cmd.CreatedBy))

	h.logger.Info("custom skill created",
		"skill_id", s.ID,
		"classroom_id", cmd.Scope.ClassroomID,
		"custom_count", count+1,
	)
	return s, nil
}

// SetSkillActiveCommand activates or deactivates a skill.
type SetSkillActiveCommand struct {
	SkillID string
	Active  bool
	ActorID string
}

// SetSkillActiveHandler handles the SetSkillActiveCommand.
type SetSkillActiveHandler struct {
	skills    skill.Repository
	publisher shared.EventPublisher
	clock     Clock
	logger    *slog.Logger
}

// NewSetSkillActiveHandler creates a new handler.
func NewSetSkillActiveHandler(skills skill.Repository, publisher shared.EventPublisher, clock Clock, logger *slog.Logger) *SetSkillActiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetSkillActiveHandler{
		skills:    skills,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("handler", "set_skill_active"),
	}
}

// Handle executes the command. Setting the current state again is a no-op.
func (h *SetSkillActiveHandler) Handle(ctx context.Context, cmd SetSkillActiveCommand) (*skill.Skill, error) {
	s, err := h.skills.GetByID(ctx, cmd.SkillID)
	if err != nil {
		return nil, fmt.Errorf("set_skill_active: %w", err)
	}
	if s.IsActive == cmd.Active {
		return s, nil
	}

	now := h.clock.now()
	if err := h.skills.SetActive(ctx, s.ID, cmd.Active, now); err != nil {
		return nil, fmt.Errorf("set_skill_active: %w", err)
	}
	if cmd.Active {
		s.Activate(now)
	} else {
		s.Deactivate(now)
	}

	scope := shared.Scope{TenantID: s.TenantID, SchoolID: s.SchoolID, ClassroomID: s.ClassroomID}
	publish(h.publisher, h.logger,
		shared.NewSkillChangedEvent(shared.EventSkillActivationChanged, scope, s.ID, s.Name, s.IsActive, cmd.ActorID))

	return s, nil
}
