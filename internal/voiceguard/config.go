// Package voiceguard keeps restricted users out of voice channels occupied
// by holders of a protected role.
package voiceguard

import (
	"errors"
	"sort"
	"strings"
)

// UnsetRoleID is stored until an administrator picks the protected role.
const UnsetRoleID = "0"

// PageSize is the number of targets per page of ListTargets.
const PageSize = 25

var (
	ErrInvalidRoleID  = errors.New("role id must be a numeric snowflake")
	ErrInvalidUserID  = errors.New("user id must be a numeric snowflake")
	ErrTargetNotFound = errors.New("user is not a restricted target")
)

// Flags are the two independent enforcement switches of a restricted user.
type Flags struct {
	// F1 disconnects the user when they join a channel a protected user is in.
	F1 bool `json:"f1"`
	// F2 disconnects the user when a protected user joins their channel.
	F2 bool `json:"f2"`
}

// DefaultFlags applies when a target is added without explicit values.
var DefaultFlags = Flags{F1: true, F2: true}

// Config is the persisted voice guard document.
type Config struct {
	ProtectedRoleID string           `json:"protected_role_id"`
	Targets         map[string]Flags `json:"targets"`
}

// Target is one entry of a listing.
type Target struct {
	UserID string
	Flags  Flags
}

func (c Config) clone() Config {
	out := Config{ProtectedRoleID: c.ProtectedRoleID, Targets: make(map[string]Flags, len(c.Targets))}
	for id, f := range c.Targets {
		out.Targets[id] = f
	}
	return out
}

// HasProtectedRole reports whether c names a real protected role.
func (c Config) HasProtectedRole() bool {
	return c.ProtectedRoleID != "" && c.ProtectedRoleID != UnsetRoleID
}

func (c Config) sortedTargets() []Target {
	out := make([]Target, 0, len(c.Targets))
	for id, f := range c.Targets {
		out = append(out, Target{UserID: id, Flags: f})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].UserID, out[j].UserID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return out
}

// ValidateSnowflake checks that id is a non-empty decimal identifier.
func ValidateSnowflake(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 20 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
