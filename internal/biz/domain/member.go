package domain

import "fmt"

// Participant represents a chat participant (value object)
type Participant struct {
	ID          string
	Name        string
	DisplayName string
	Bot         bool
}

// Label returns the name shown in prompts: display name, falling back to name
func (p Participant) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// MentionToken is the user mention encoding: <@ID>
func (p Participant) MentionToken() string {
	return fmt.Sprintf("<@%s>", p.ID)
}

// RoleMentionToken is the role/everyone mention encoding: <@&ID>
func (p Participant) RoleMentionToken() string {
	return fmt.Sprintf("<@&%s>", p.ID)
}

// Readable renders the participant as it appears after mention sanitization
func (p Participant) Readable() string {
	return "@" + p.Label()
}
