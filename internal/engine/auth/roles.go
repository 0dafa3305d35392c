package auth

import "sort"

// DefaultRoles is the seniority table used when no config overrides it.
var DefaultRoles = map[string]int{
	"senior_manager":   8,
	"manager":          7,
	"team_lead":        6,
	"senior_architect": 5,
	"architect":        4,
	"senior_developer": 3,
	"developer":        2,
	"intern":           1,
}

// Hierarchy maps role names to seniority levels. It is read-only once built
// and safe for concurrent use.
type Hierarchy struct {
	levels map[string]int
}

// NewHierarchy copies levels into a new table.
func NewHierarchy(levels map[string]int) Hierarchy {
	copied := make(map[string]int, len(levels))
	for name, lvl := range levels {
		copied[name] = lvl
	}
	return Hierarchy{levels: copied}
}

// LevelOf returns the level of role, or 0 when the role is unknown.
func (h Hierarchy) LevelOf(role string) int {
	return h.levels[role]
}

// Known reports whether role is part of the table.
func (h Hierarchy) Known(role string) bool {
	_, ok := h.levels[role]
	return ok
}

// MayAssign reports whether an identity holding assignerRole may create a
// task for one holding assigneeRole. Peers may assign to each other.
func (h Hierarchy) MayAssign(assignerRole, assigneeRole string) bool {
	return h.LevelOf(assignerRole) >= h.LevelOf(assigneeRole)
}

// RoleLevel is one row of the table.
type RoleLevel struct {
	Role  string `json:"role"`
	Level int    `json:"level"`
}

// Roles returns the table ordered from most to least senior.
func (h Hierarchy) Roles() []RoleLevel {
	out := make([]RoleLevel, 0, len(h.levels))
	for name, lvl := range h.levels {
		out = append(out, RoleLevel{Role: name, Level: lvl})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Role < out[j].Role
	})
	return out
}
