package history

import "fmt"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversational message. Its position in a History is its order.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

func (r Role) valid() bool {
	return r == RoleUser || r == RoleAssistant
}

func validate(turns []Turn) error {
	for i, t := range turns {
		if !t.Role.valid() {
			return fmt.Errorf("turn %d: invalid role %q", i, t.Role)
		}
	}
	return nil
}
