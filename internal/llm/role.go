package llm

import "fmt"

// Role is the closed set of speakers a turn can carry.
type Role uint8

const (
	RoleSystem Role = iota + 1
	RoleUser
	RoleAssistant
	RoleTool
)

// ParseRole maps a stored role name onto a Role.
func ParseRole(name string) (Role, error) {
	switch name {
	case "system":
		return RoleSystem, nil
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	case "tool":
		return RoleTool, nil
	default:
		return 0, fmt.Errorf("unknown role %q", name)
	}
}

// String returns the stored name of the role, or "" for an invalid value.
func (r Role) String() string {
	name, err := r.wireName()
	if err != nil {
		return ""
	}
	return name
}

func (r Role) wireName() (string, error) {
	switch r {
	case RoleSystem:
		return "system", nil
	case RoleUser:
		return "user", nil
	case RoleAssistant:
		return "assistant", nil
	case RoleTool:
		return "tool", nil
	default:
		return "", fmt.Errorf("unknown role %d", uint8(r))
	}
}

// Turn is one role-tagged unit of conversation. ToolCallID links a tool turn
// to the assistant call it answers and is required for RoleTool.
type Turn struct {
	Role       Role
	Text       string
	ToolCallID string
}

// SystemTurn builds a system turn.
func SystemTurn(text string) Turn { return Turn{Role: RoleSystem, Text: text} }

// UserTurn builds a user turn.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// AssistantTurn builds an assistant turn.
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// ToolTurn builds a tool result answering callID.
func ToolTurn(callID, text string) Turn { return Turn{Role: RoleTool, Text: text, ToolCallID: callID} }
