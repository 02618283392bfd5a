package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// specificity determines pattern evaluation order: specific IDs first,
// then ID ranges, then callsign globs. A rule's specificity is the most
// specific kind it carries (OR across kinds means a single rule can mix
// kinds, but its position in the ordered list is governed by its sharpest
// kind).
const (
	specificityID = iota
	specificityRange
	specificityCallsign
)

// Match is a pattern's match criteria: any of its present kinds may match
// (OR across kinds), never AND.
type Match struct {
	IDs       []uint32
	Ranges    []IDRange
	Callsigns []string // glob patterns, '*' wildcard, case-insensitive

	compiledCallsigns []*regexp.Regexp
}

func (m *Match) compile() error {
	for _, r := range m.Ranges {
		if err := r.validate(); err != nil {
			return err
		}
	}
	for _, glob := range m.Callsigns {
		if !callsignGlobPattern.MatchString(glob) {
			return fmt.Errorf("invalid callsign pattern %q: must match [A-Za-z0-9*]+", glob)
		}
		re, err := compileCallsignGlob(glob)
		if err != nil {
			return err
		}
		m.compiledCallsigns = append(m.compiledCallsigns, re)
	}
	return nil
}

func (m *Match) specificity() int {
	if len(m.IDs) > 0 {
		return specificityID
	}
	if len(m.Ranges) > 0 {
		return specificityRange
	}
	return specificityCallsign
}

func (m *Match) matches(radioID uint32, callsign string) bool {
	for _, id := range m.IDs {
		if id == radioID {
			return true
		}
	}
	for _, r := range m.Ranges {
		if r.Contains(radioID) {
			return true
		}
	}
	if callsign != "" {
		for _, re := range m.compiledCallsigns {
			if re.MatchString(callsign) {
				return true
			}
		}
	}
	return false
}

var callsignGlobPattern = regexp.MustCompile(`^[A-Za-z0-9*]+$`)

func compileCallsignGlob(glob string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(glob)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	re, err := regexp.Compile("(?i)^" + escaped + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid callsign glob %q: %w", glob, err)
	}
	return re, nil
}

// BlacklistEntry rejects a connection outright; Reason is surfaced to the
// peer as an MSTNAK cause and logged.
type BlacklistEntry struct {
	Name   string
	Match  Match
	Reason string
}

// Pattern maps a Match to the PeerConfig applied when it wins.
type Pattern struct {
	Match  Match
	Config PeerConfig
}

// Matcher is the compiled, query-ready access-control policy.
type Matcher struct {
	blacklist []BlacklistEntry
	patterns  []Pattern
	def       PeerConfig
	directory Directory
}

// New validates and compiles blacklist entries and patterns, pre-sorts
// patterns by specificity (IDs, then ranges, then callsign globs; relative
// order within a tier is preserved), and returns a ready-to-query Matcher.
func New(blacklist []BlacklistEntry, patterns []Pattern, def PeerConfig, dir Directory) (*Matcher, error) {
	m := &Matcher{
		def:       def,
		directory: dir,
	}
	if dir == nil {
		m.directory = NopDirectory{}
	}

	for i := range blacklist {
		if err := blacklist[i].Match.compile(); err != nil {
			return nil, fmt.Errorf("blacklist entry %q: %w", blacklist[i].Name, err)
		}
	}
	m.blacklist = blacklist

	compiled := make([]Pattern, len(patterns))
	copy(compiled, patterns)
	for i := range compiled {
		if err := compiled[i].Match.compile(); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", compiled[i].Config.Name, err)
		}
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Match.specificity() < compiled[j].Match.specificity()
	})
	m.patterns = compiled

	return m, nil
}

// Result is the outcome of a Query.
type Result struct {
	Blacklisted bool
	RuleName    string
	Reason      string
	Config      PeerConfig
}

// Query resolves (radio_id, callsign) to a PeerConfig or a blacklist
// rejection. callsign may be empty; if so and a Directory is configured,
// the directory is consulted before pattern matching.
func (m *Matcher) Query(radioID uint32, callsign string) Result {
	if callsign == "" {
		if resolved, ok := m.directory.Lookup(radioID); ok {
			callsign = resolved
		}
	}

	for _, entry := range m.blacklist {
		if entry.Match.matches(radioID, callsign) {
			return Result{Blacklisted: true, RuleName: entry.Name, Reason: entry.Reason}
		}
	}

	for _, p := range m.patterns {
		if p.Match.matches(radioID, callsign) {
			return Result{Config: p.Config}
		}
	}

	return Result{Config: m.def}
}
