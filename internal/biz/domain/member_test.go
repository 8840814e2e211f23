package domain

import "testing"

func TestParticipant_Label(t *testing.T) {
	tests := []struct {
		p    Participant
		want string
	}{
		{Participant{ID: "u1", Name: "alice", DisplayName: "Alice"}, "Alice"},
		{Participant{ID: "u1", Name: "alice"}, "alice"},
		{Participant{ID: "u1"}, "u1"},
	}
	for _, tt := range tests {
		if got := tt.p.Label(); got != tt.want {
			t.Errorf("Expected label %q, got %q", tt.want, got)
		}
	}
}

func TestParticipant_MentionTokens(t *testing.T) {
	p := Participant{ID: "ou_1"}
	if p.MentionToken() != "<@ou_1>" {
		t.Errorf("Unexpected mention token %q", p.MentionToken())
	}
	if p.RoleMentionToken() != "<@&ou_1>" {
		t.Errorf("Unexpected role mention token %q", p.RoleMentionToken())
	}
}

func TestChatMessage_MentionsParticipant(t *testing.T) {
	msg := &ChatMessage{Mentions: []Participant{{ID: "bot"}, {ID: "u2"}}}

	if !msg.MentionsParticipant("bot") {
		t.Error("Expected bot to be mentioned")
	}
	if msg.MentionsParticipant("u3") {
		t.Error("Expected u3 not to be mentioned")
	}
	if msg.MentionsParticipant("") {
		t.Error("Empty ID must never match")
	}
}
