package feishu

import "testing"

func TestRewriteMentionKeys(t *testing.T) {
	mentions := []Mention{
		{Key: "@_user_1", OpenID: "ou_bot", Name: "hobo"},
		{Key: "@_user_2", OpenID: "ou_alice", Name: "Alice"},
		{Key: "@_user_3", Name: "no id"},
	}

	got := RewriteMentionKeys("@_user_1 ask @_user_2 and @_all, @_user_3", mentions)
	want := "<@ou_bot> ask <@ou_alice> and <@&all>, @_user_3"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestRewriteMentionKeys_LongestKeyFirst(t *testing.T) {
	mentions := make([]Mention, 0, 11)
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"} {
		mentions = append(mentions, Mention{Key: "@_user_" + itoa(i+1), OpenID: id})
	}

	got := RewriteMentionKeys("@_user_11 @_user_1", mentions)
	if got != "<@k> <@a>" {
		t.Errorf("Expected %q, got %q", "<@k> <@a>", got)
	}
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}

func TestParseContent(t *testing.T) {
	text, ok := parseContent("text", `{"text":"@_user_1 hi"}`)
	if !ok || text != "@_user_1 hi" {
		t.Errorf("Unexpected text parse: %q %v", text, ok)
	}

	post := `{"title":"T","content":[[{"tag":"at","user_id":"@_user_1"},{"tag":"text","text":" see "},{"tag":"a","text":"link","href":"https://example.com"}],[{"tag":"img","image_key":"k"}]]}`
	text, ok = parseContent("post", post)
	if !ok {
		t.Fatal("Expected post to parse")
	}
	if text != "T\n@_user_1 see https://example.com" {
		t.Errorf("Unexpected post parse: %q", text)
	}

	if _, ok := parseContent("image", `{"image_key":"x"}`); ok {
		t.Error("Expected image messages to be unsupported")
	}
}

func TestSender_IsApp(t *testing.T) {
	var nilSender *Sender
	if nilSender.IsApp() {
		t.Error("Expected nil sender not to be an app")
	}
	if !(&Sender{SenderType: "app"}).IsApp() {
		t.Error("Expected app sender")
	}
}
