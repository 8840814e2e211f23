package domain

// IntentJudgment is the classifier's verdict on a question.
// The zero value means "plain chat": no search, no URL, no query.
type IntentJudgment struct {
	NeedsSearch bool   `json:"needs_search"`
	HasURL      bool   `json:"has_url"`
	SearchQuery string `json:"search_query,omitempty"`
}

// HasQuery reports whether a search query was extracted
func (j IntentJudgment) HasQuery() bool {
	return j.SearchQuery != ""
}

// SummaryResult is a reduced page plus the notes gathered while reducing it
type SummaryResult struct {
	Text  string   `json:"text"`
	Notes []string `json:"notes,omitempty"`
}

// SearchResult is one ranked hit from the search service
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
