// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Scope Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Scope identifies the tenant, school and classroom an operation runs in.
// Tenant and identity validation is done by the caller; the engine only
// checks that the identifiers are present.
type Scope struct {
	TenantID    string `json:"tenant_id"`
	SchoolID    string `json:"school_id"`
	ClassroomID string `json:"classroom_id"`
}

// Validate checks that every identifier is present.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.TenantID) == "" {
		return ErrTenantRequired
	}
	if strings.TrimSpace(s.SchoolID) == "" {
		return ErrSchoolRequired
	}
	if strings.TrimSpace(s.ClassroomID) == "" {
		return ErrClassroomRequired
	}
	return nil
}

// ClassroomKey returns the cache scope key for classroom aggregates.
func (s Scope) ClassroomKey() string {
	return ClassroomScopeKey(s.ClassroomID)
}

// Map returns the scope as an event payload fragment.
func (s Scope) Map() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":    s.TenantID,
		"school_id":    s.SchoolID,
		"classroom_id": s.ClassroomID,
	}
}

// ClassroomScopeKey builds the scope key used for classroom-level cached aggregates.
func ClassroomScopeKey(classroomID string) string {
	return "classroom:" + classroomID
}

// ═══════════════════════════════════════════════════════════════════════════
// Role Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Role is the role of the user awarding points.
type Role string

const (
	RoleTeacher   Role = "teacher"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleTeacher, RoleAssistant, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════════════════════

// UniqueStrings returns the non-empty values of ids with duplicates removed,
// preserving first-seen order.
func UniqueStrings(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
