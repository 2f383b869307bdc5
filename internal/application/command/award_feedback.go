package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARENT FEEDBACK
// Reactions and "viewed" flags are the only fields of an award that change
// after it is written.
// ══════════════════════════════════════════════════════════════════════════════

// ReactToAwardCommand appends a reaction to an award.
type ReactToAwardCommand struct {
	AwardID string
	ByID    string
	Emoji   string
}

// ReactToAwardHandler handles the ReactToAwardCommand.
type ReactToAwardHandler struct {
	awards award.Repository
	clock  Clock
}

// NewReactToAwardHandler creates a new handler.
func NewReactToAwardHandler(awards award.Repository, clock Clock) *ReactToAwardHandler {
	return &ReactToAwardHandler{awards: awards, clock: clock}
}

// Handle executes the command and returns the updated award.
func (h *ReactToAwardHandler) Handle(ctx context.Context, cmd ReactToAwardCommand) (*award.PointAward, error) {
	if strings.TrimSpace(cmd.AwardID) == "" || strings.TrimSpace(cmd.ByID) == "" {
		return nil, fmt.Errorf("react_to_award: validation failed: %w",
			shared.NewDomainError("award", "React", shared.ErrInvalidID, "award ID and reacting user are required"))
	}
	if !award.IsAllowedReaction(cmd.Emoji) {
		return nil, fmt.Errorf("react_to_award: validation failed: %w", shared.ErrInvalidReaction)
	}

	r := award.Reaction{ByID: cmd.ByID, Emoji: cmd.Emoji, At: h.clock.now()}
	if err := h.awards.AddReaction(ctx, cmd.AwardID, r); err != nil {
		return nil, fmt.Errorf("react_to_award: %w", err)
	}
	a, err := h.awards.GetByID(ctx, cmd.AwardID)
	if err != nil {
		return nil, fmt.Errorf("react_to_award: %w", err)
	}
	return a, nil
}

// MarkAwardViewedHandler flags awards as seen by a parent.
type MarkAwardViewedHandler struct {
	awards award.Repository
	clock  Clock
}

// NewMarkAwardViewedHandler creates a new handler.
func NewMarkAwardViewedHandler(awards award.Repository, clock Clock) *MarkAwardViewedHandler {
	return &MarkAwardViewedHandler{awards: awards, clock: clock}
}

// Handle marks every award in ids as viewed. Unknown IDs fail the call.
func (h *MarkAwardViewedHandler) Handle(ctx context.Context, ids []string) error {
	now := h.clock.now()
	for _, id := range shared.UniqueStrings(ids) {
		if err := h.awards.MarkViewed(ctx, id, now); err != nil {
			return fmt.Errorf("mark_award_viewed: %s: %w", id, err)
		}
	}
	return nil
}
