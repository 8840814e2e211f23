package domain

// Role is the speaker of a conversation turn
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
)

// Turn is one entry of a conversation submitted to a generation backend.
// A []Turn is always chronological, oldest first.
type Turn struct {
	Role    Role
	Content string
}

// SystemTurn creates a system turn
func SystemTurn(content string) Turn { return Turn{Role: RoleSystem, Content: content} }

// HumanTurn creates a human turn
func HumanTurn(content string) Turn { return Turn{Role: RoleHuman, Content: content} }

// AITurn creates an AI turn
func AITurn(content string) Turn { return Turn{Role: RoleAI, Content: content} }
