// Package m3u provides filtering and normalization of extended M3U playlists.
//
// A playlist is a header line (#EXTM3U) followed by records, each made of an
// #EXTINF metadata line and the stream address that follows it. Filter drops
// records whose group-title is excluded and removes stray whitespace before
// the comma that separates the EXTINF attributes from the display name.
package m3u

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Line markers recognised by the filter.
const (
	HeaderSentinel = "#EXTM3U"
	MetadataPrefix = "#EXTINF:"
	commentPrefix  = "#"
)

// ErrInvalidPlaylist is returned when the input cannot be treated as a playlist
// at all: it is empty, binary, or lacks the header when one is required.
var ErrInvalidPlaylist = errors.New("invalid playlist")

// commaFixRegex matches whitespace immediately preceding a comma. RE2's \s is
// ASCII only, so no-break and other Unicode spaces and a stray BOM are
// listed explicitly.
var commaFixRegex = regexp.MustCompile(`[\s\p{Zs}\x{FEFF}]+,`)

// Mode selects how blank lines and non-metadata comment lines are handled.
type Mode string

const (
	// ModePreserve keeps blank lines and comment lines as they are.
	ModePreserve Mode = "preserve"
	// ModeCompact drops blank lines and comment lines other than #EXTINF,
	// and strips trailing whitespace from metadata and address lines.
	ModeCompact Mode = "compact"
)

// ParseMode converts a configuration string into a Mode.
// An empty string selects ModePreserve.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePreserve:
		return ModePreserve, nil
	case ModeCompact:
		return ModeCompact, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q (expected preserve or compact)", s)
	}
}

// Options controls a filtering pass.
type Options struct {
	// Mode selects the blank/comment line policy. Zero value is ModePreserve.
	Mode Mode

	// SeparateRecords emits a blank line after the header and after every
	// kept record. Blank lines from the input are dropped so that the layout
	// is stable across repeated passes.
	SeparateRecords bool

	// RequireHeader rejects input whose first line is not the header sentinel.
	RequireHeader bool
}

// Stats reports what a filtering pass did.
type Stats struct {
	// Records is the number of metadata lines seen.
	Records int
	// Removed is the number of records dropped because their group is excluded.
	Removed int
	// Kept is the number of records written to the output.
	Kept int
	// Fixed is the number of metadata lines changed by the comma fix.
	Fixed int
	// Dropped is the number of blank or comment lines dropped by the line policy.
	Dropped int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Records += other.Records
	s.Removed += other.Removed
	s.Kept += other.Kept
	s.Fixed += other.Fixed
	s.Dropped += other.Dropped
}

// Filter runs a single forward pass over raw and returns the cleaned playlist.
//
// The header line is emitted unchanged. Every #EXTINF record whose group
// (see ExtractGroupTag) is in exclusions is dropped together with its address
// line; every other record has any whitespace run before a comma collapsed
// to `,` in its metadata line.
// Lines that are not part of a record pass through, subject to opts.Mode.
// The output never ends in blank lines and always ends in exactly one "\n".
func Filter(raw string, exclusions ExclusionSet, opts Options) (string, Stats, error) {
	var stats Stats

	if strings.TrimSpace(raw) == "" {
		return "", stats, fmt.Errorf("%w: empty input", ErrInvalidPlaylist)
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return "", stats, fmt.Errorf("%w: binary content", ErrInvalidPlaylist)
	}

	lines := splitLines(raw)
	out := make([]string, 0, len(lines)+1)
	compact := opts.Mode == ModeCompact

	i := 0
	if isHeader(lines[0]) {
		out = append(out, lines[0])
		if opts.SeparateRecords {
			out = append(out, "")
		}
		i = 1
	} else if opts.RequireHeader {
		return "", stats, fmt.Errorf("%w: missing %s header", ErrInvalidPlaylist, HeaderSentinel)
	}

	for i < len(lines) {
		line := lines[i]

		if !isMetadata(line) {
			if keepLine(line, compact, opts.SeparateRecords) {
				out = append(out, line)
			} else {
				stats.Dropped++
			}
			i++
			continue
		}

		stats.Records++
		addr := findAddress(lines, i+1)

		if exclusions.Len() > 0 {
			if group, ok := ExtractGroupTag(line); ok && exclusions.Contains(group) {
				stats.Removed++
				if addr < 0 {
					i++
				} else {
					i = addr + 1
				}
				continue
			}
		}

		stats.Kept++
		if compact {
			line = trimRight(line)
		}
		fixed := commaFixRegex.ReplaceAllString(line, ",")
		if fixed != line {
			stats.Fixed++
		}
		out = append(out, fixed)

		if addr < 0 {
			i++
		} else {
			// Directive and blank lines between metadata and address stay
			// inside the record.
			for _, between := range lines[i+1 : addr] {
				if keepLine(between, compact, opts.SeparateRecords) {
					out = append(out, between)
				} else {
					stats.Dropped++
				}
			}
			address := lines[addr]
			if compact {
				address = trimRight(address)
			}
			out = append(out, address)
			i = addr + 1
		}

		if opts.SeparateRecords {
			out = append(out, "")
		}
	}

	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}

	return strings.Join(out, "\n") + "\n", stats, nil
}

// HasHeader reports whether text starts with the header sentinel,
// ignoring leading whitespace.
func HasHeader(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), HeaderSentinel)
}

// splitLines splits on "\n" and drops a trailing "\r" from every line.
// A final line terminator does not produce an extra empty line.
func splitLines(raw string) []string {
	lines := strings.Split(strings.TrimSuffix(raw, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// findAddress returns the index of the address line belonging to the
// metadata line just before start, or -1 when the record has none.
// Blank lines and directive comments may sit between the two; another
// #EXTINF line or the end of input ends the search.
func findAddress(lines []string, start int) int {
	for j := start; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, MetadataPrefix):
			return -1
		case strings.HasPrefix(trimmed, commentPrefix):
			continue
		default:
			return j
		}
	}
	return -1
}

// keepLine applies the blank/comment policy to a line outside the
// metadata/address pair.
func keepLine(line string, compact, separate bool) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return !compact && !separate
	}
	if strings.HasPrefix(trimmed, commentPrefix) {
		return !compact
	}
	return true
}

func isHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), HeaderSentinel)
}

func isMetadata(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), MetadataPrefix)
}

func trimRight(s string) string {
	return strings.TrimRight(s, " \t\r\v\f")
}
