package window

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher selects windows by app id or title.
//
// An exact, case-insensitive app id match always wins; otherwise the pattern
// is treated as a regular expression and tried against the app id and then
// the title.
type Matcher struct {
	raw string
	re  *regexp.Regexp
}

// NewMatcher compiles a window pattern
func NewMatcher(pattern string) (*Matcher, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty window pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid window pattern %q: %w", pattern, err)
	}
	return &Matcher{raw: pattern, re: re}, nil
}

// Match reports whether the window described by info is selected
func (m *Matcher) Match(info Info) bool {
	if m == nil {
		return false
	}
	if strings.EqualFold(info.AppID, m.raw) {
		return true
	}
	if info.AppID != "" && m.re.MatchString(info.AppID) {
		return true
	}
	return info.Title != "" && m.re.MatchString(info.Title)
}

func (m *Matcher) String() string {
	if m == nil {
		return ""
	}
	return m.raw
}
