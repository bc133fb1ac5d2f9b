package m3u

import (
	"regexp"
	"strings"
)

// groupTitleRegex matches group-title="..." or group-title='...'.
// The attribute name is case-insensitive; the value is taken verbatim.
var groupTitleRegex = regexp.MustCompile(`(?i)group-title=["']([^"']*)["']`)

// ExtractGroupTag returns the value of the first group-title attribute on
// an #EXTINF line. The second return value is false when the line carries
// no such attribute.
func ExtractGroupTag(line string) (string, bool) {
	m := groupTitleRegex.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NormalizeGroup lower-cases and trims a group tag for comparison.
func NormalizeGroup(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ExclusionSet is a set of normalized group tags.
// The zero value is an empty set that excludes nothing.
type ExclusionSet struct {
	groups map[string]struct{}
}

// NewExclusionSet builds a set from raw group names. Each value is
// normalized; empty or whitespace-only values are ignored.
func NewExclusionSet(groups ...string) ExclusionSet {
	set := ExclusionSet{groups: make(map[string]struct{}, len(groups))}
	for _, g := range groups {
		n := NormalizeGroup(g)
		if n == "" {
			continue
		}
		set.groups[n] = struct{}{}
	}
	return set
}

// Contains reports whether group, after normalization, is in the set.
func (s ExclusionSet) Contains(group string) bool {
	if len(s.groups) == 0 {
		return false
	}
	_, ok := s.groups[NormalizeGroup(group)]
	return ok
}

// Len returns the number of distinct normalized groups.
func (s ExclusionSet) Len() int {
	return len(s.groups)
}

// GroupCount is the number of records carrying one group tag.
type GroupCount struct {
	Group   string `json:"group" yaml:"group"`
	Records int    `json:"records" yaml:"records"`
}

// Groups counts records per group tag in first-seen order. Tags are grouped
// by their normalized form and reported with the spelling seen first.
// Records without a group-title are counted under an empty Group.
func Groups(raw string) []GroupCount {
	var out []GroupCount
	index := make(map[string]int)

	for _, line := range splitLines(raw) {
		if !isMetadata(line) {
			continue
		}
		group, _ := ExtractGroupTag(line)
		key := NormalizeGroup(group)
		if i, ok := index[key]; ok {
			out[i].Records++
			continue
		}
		index[key] = len(out)
		out = append(out, GroupCount{Group: strings.TrimSpace(group), Records: 1})
	}
	return out
}
