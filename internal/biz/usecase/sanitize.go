package usecase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var breakrowRe = regexp.MustCompile(`\n+`)

// SanitizeBreakrow collapses every run of newlines into a single newline
func SanitizeBreakrow(s string) string {
	return breakrowRe.ReplaceAllString(s, "\n")
}

// leakRatio is the share of keywords a reply may contain before it is censored
const leakRatio = 0.2

// LeakFilter censors replies that echo too much of the system prompt
type LeakFilter struct {
	keywords func() []string
	notice   string
	logger   *zap.Logger
}

// NewLeakFilter creates a leak filter. keywords is consulted on every call.
func NewLeakFilter(keywords func() []string, notice string, logger *zap.Logger) *LeakFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeakFilter{keywords: keywords, notice: notice, logger: logger}
}

// Filter returns the notice when the reply contains more than 20% of the
// keywords, otherwise the reply unchanged. No keywords disables the filter.
func (f *LeakFilter) Filter(reply string) string {
	if f == nil || f.keywords == nil {
		return reply
	}
	var keywords []string
	for _, k := range f.keywords() {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return reply
	}

	matches := 0
	for _, k := range keywords {
		if strings.Contains(reply, k) {
			matches++
		}
	}
	if float64(matches) > float64(len(keywords))*leakRatio {
		f.logger.Warn("reply censored",
			zap.Int("matches", matches),
			zap.Int("keywords", len(keywords)))
		return f.notice
	}
	return reply
}

// Sanitizer applies breakrow collapsing then the leak filter
type Sanitizer struct {
	leak *LeakFilter
}

// NewSanitizer creates a sanitizer; leak may be nil
func NewSanitizer(leak *LeakFilter) *Sanitizer {
	return &Sanitizer{leak: leak}
}

// Sanitize cleans a generated reply before it is sent
func (s *Sanitizer) Sanitize(text string) string {
	text = SanitizeBreakrow(text)
	if s != nil && s.leak != nil {
		text = s.leak.Filter(text)
	}
	return text
}
