package evallog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ErrUnknownRole is returned when a message carries a role outside the closed set.
var ErrUnknownRole = errors.New("unknown message role")

// Role is the author of a chat message. The set is closed: anything else in a
// transcript is a decode error, never a silently accepted value.
type Role uint8

const (
	RoleSystem Role = iota + 1
	RoleUser
	RoleAssistant
	RoleTool
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool}

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleTool:
		return "tool"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r >= RoleSystem && r <= RoleTool
}

var roleByName = map[string]Role{
	"system":    RoleSystem,
	"user":      RoleUser,
	"assistant": RoleAssistant,
	"tool":      RoleTool,
}

// ParseRole converts a role name (case-insensitive) into a Role.
func ParseRole(s string) (Role, error) {
	if r, ok := roleByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return json.Marshal(r.String())
}

// roleFromWire accepts only the lower-case role names written by the eval
// framework.
func roleFromWire(s string) (Role, error) {
	r, ok := roleByName[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}
