package domain

import "time"

// ChatMessage is a read-only view of a message delivered by the chat transport
type ChatMessage struct {
	ID        string
	ChatID    string
	Author    Participant
	Content   string
	Mentions  []Participant
	CreatedAt time.Time
}

// IsFrom checks if the message was authored by the given participant ID
func (m *ChatMessage) IsFrom(id string) bool {
	return m.Author.ID == id
}

// MentionsParticipant reports whether the participant with the given ID is mentioned
func (m *ChatMessage) MentionsParticipant(id string) bool {
	if id == "" {
		return false
	}
	for _, p := range m.Mentions {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ReplyTarget identifies where a deferred reply goes
type ReplyTarget struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
}

// TargetOf returns the reply target for a message
func TargetOf(m *ChatMessage) ReplyTarget {
	return ReplyTarget{ChatID: m.ChatID, MessageID: m.ID}
}
