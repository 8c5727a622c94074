package normalize

import (
	"sort"

	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

type alias struct {
	folded string
	team   int
}

// TeamIndex resolves free-text team mentions to canonical clubs.
type TeamIndex struct {
	teams    []config.Team
	byName   map[string]int
	aliases  []alias  // longest first
	excluded []string // folded exclusion phrases
}

type mention struct {
	team  int
	start int
	end   int
}

// NewTeamIndex builds an index over the given team table.
func NewTeamIndex(teams []config.Team) *TeamIndex {
	idx := &TeamIndex{
		teams:  teams,
		byName: make(map[string]int, len(teams)),
	}

	for i, t := range teams {
		idx.byName[t.Name] = i

		for _, a := range append([]string{t.Name}, t.Aliases...) {
			if f := fold(a); f != "" {
				idx.aliases = append(idx.aliases, alias{folded: f, team: i})
			}
		}

		for _, e := range t.Exclude {
			if f := fold(e); f != "" {
				idx.excluded = append(idx.excluded, f)
			}
		}
	}

	sort.SliceStable(idx.aliases, func(i, j int) bool {
		return len(idx.aliases[i].folded) > len(idx.aliases[j].folded)
	})

	return idx
}

// Team returns the table entry for a canonical name.
func (x *TeamIndex) Team(name string) (config.Team, bool) {
	i, ok := x.byName[name]
	if !ok {
		return config.Team{}, false
	}

	return x.teams[i], true
}

// Canonical maps a single team string to its canonical name.
func (x *TeamIndex) Canonical(text string) (string, bool) {
	f := fold(text)

	for _, a := range x.aliases {
		if a.folded == f {
			return x.teams[a.team].Name, true
		}
	}

	return "", false
}

// mentions returns the non-overlapping team mentions in a folded title,
// ordered by position. Longer aliases win over shorter ones they contain and
// spans covered by an exclusion phrase never match.
func (x *TeamIndex) mentions(folded string) []mention {
	covered := make([]bool, len(folded))

	for _, e := range x.excluded {
		for _, start := range indexAllWords(folded, e) {
			markSpan(covered, start, start+len(e))
		}
	}

	var found []mention

	for _, a := range x.aliases {
		for _, start := range indexAllWords(folded, a.folded) {
			end := start + len(a.folded)
			if spanTaken(covered, start, end) {
				continue
			}

			markSpan(covered, start, end)
			found = append(found, mention{team: a.team, start: start, end: end})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	return found
}

func markSpan(covered []bool, start, end int) {
	for i := start; i < end; i++ {
		covered[i] = true
	}
}

func spanTaken(covered []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if covered[i] {
			return true
		}
	}

	return false
}
