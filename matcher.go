package cwstatsd

import (
	"fmt"
	"regexp"
	"strings"
)

// StringMatch matches a metric name against a single rule.
//
// A rule is one of:
//   - "name"        exact match
//   - "prefix*"     prefix match
//   - "regex:expr"  regular expression match
//
// and may be prefixed with "!" to invert the result.
type StringMatch struct {
	test        string
	invertMatch bool
	prefixMatch bool
	regex       *regexp.Regexp
}

type StringMatchList []StringMatch

// NewStringMatch parses a rule.  An error is returned if a regex rule does not compile.
func NewStringMatch(s string) (StringMatch, error) {
	invert := false
	if strings.HasPrefix(s, "!") {
		invert = true
		s = s[1:]
	}

	if strings.HasPrefix(s, "regex:") {
		s = s[len("regex:"):]
		re, err := regexp.Compile(s)
		if err != nil {
			return StringMatch{}, fmt.Errorf("invalid match rule %q: %w", s, err)
		}
		return StringMatch{
			test:        s,
			invertMatch: invert,
			regex:       re,
		}, nil
	}

	prefix := false
	if strings.HasSuffix(s, "*") {
		prefix = true
		s = s[:len(s)-1]
	}
	return StringMatch{
		test:        s,
		invertMatch: invert,
		prefixMatch: prefix,
	}, nil
}

// NewStringMatchList parses every rule in tests.
func NewStringMatchList(tests []string) (StringMatchList, error) {
	matches := make(StringMatchList, 0, len(tests))
	for _, test := range tests {
		sm, err := NewStringMatch(test)
		if err != nil {
			return nil, err
		}
		matches = append(matches, sm)
	}
	return matches, nil
}

// Match indicates if the provided string matches the criteria for this StringMatch
func (sm StringMatch) Match(s string) bool {
	switch {
	case sm.regex != nil:
		return sm.regex.MatchString(s) != sm.invertMatch
	case sm.prefixMatch:
		return strings.HasPrefix(s, sm.test) != sm.invertMatch
	default:
		return (s == sm.test) != sm.invertMatch
	}
}

// MatchAny indicates if s matches anything in the list, returns false if the list is empty
func (sml StringMatchList) MatchAny(s string) bool {
	for _, sm := range sml {
		if sm.Match(s) {
			return true
		}
	}
	return false
}
