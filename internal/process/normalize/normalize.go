// Package normalize turns free-text goal post titles into MatchEvents.
//
// A title is accepted only when it carries a score pattern and two distinct
// known clubs. Team spellings are folded (case, accents, whitespace) and
// resolved through a many-to-one alias table. Home/away order follows the
// teams' positions around the score.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/internal/core/errors"
)

var (
	// Folded titles only. Alternative one is the "[1-0]" form; alternative two
	// is "1-0", "[1]-0", "1-[1]" with dash, en dash or colon.
	scorePattern = regexp.MustCompile(`\[(\d{1,2})\s*[-–:]\s*(\d{1,2})\]|(\[?)(\d{1,2})(\]?)\s*[-–:]\s*(\[?)(\d{1,2})(\]?)`)

	minutePattern = regexp.MustCompile(`(\d{1,3}(?:\+\d{1,2})?)\s*['’′]`)
	scorerPattern = regexp.MustCompile(`[-–]\s*([^-–]+?)\s*\d{1,3}(?:\+\d{1,2})?\s*['’′]`)
	versusPattern = regexp.MustCompile(`^\s*(?:vs\.?|v\.?|x|-|–)\s*$`)
)

// Normalizer parses goal post titles.
type Normalizer struct {
	teams    *TeamIndex
	excluded []string

	requireSignal bool
	keywords      []string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithGoalSignal makes a plain score insufficient: the title must also carry
// a bracketed score or one of the keywords as a whole word.
func WithGoalSignal(keywords []string) Option {
	return func(n *Normalizer) {
		n.requireSignal = true
		n.keywords = foldAll(keywords)
	}
}

// New creates a Normalizer. Excluded terms reject any title containing them
// as whole words.
func New(teams *TeamIndex, excludedTerms []string, opts ...Option) *Normalizer {
	n := &Normalizer{teams: teams, excluded: foldAll(excludedTerms)}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

func foldAll(terms []string) []string {
	var out []string

	for _, t := range terms {
		if f := fold(t); f != "" {
			out = append(out, f)
		}
	}

	return out
}

// Teams returns the team index used for recognition.
func (n *Normalizer) Teams() *TeamIndex {
	return n.teams
}

// Normalize parses a bare title. ok is false when the title is not a goal update.
func (n *Normalizer) Normalize(title string) (domain.MatchEvent, bool) {
	ev, err := n.Parse(domain.CandidatePost{Title: title})

	return ev, err == nil
}

// Parse derives a MatchEvent from a post. The returned error is
// errors.ErrParseRejected or errors.ErrUnknownTeam, wrapped with the reason.
func (n *Normalizer) Parse(post domain.CandidatePost) (domain.MatchEvent, error) {
	folded := fold(post.Title)

	for _, term := range n.excluded {
		if containsWord(folded, term) {
			return domain.MatchEvent{}, fmt.Errorf("%w: excluded term %q", errors.ErrParseRejected, term)
		}
	}

	scores := findScores(folded)
	if len(scores) == 0 {
		return domain.MatchEvent{}, fmt.Errorf("%w: no score pattern", errors.ErrParseRejected)
	}

	if n.requireSignal && !n.hasGoalSignal(folded, scores) {
		return domain.MatchEvent{}, fmt.Errorf("%w: no goal keyword or bracketed score", errors.ErrParseRejected)
	}

	mentions := withoutScoreOverlap(n.teams.mentions(folded), scores)
	if distinctTeams(mentions) < 2 {
		return domain.MatchEvent{}, fmt.Errorf("%w: %d distinct teams", errors.ErrUnknownTeam, distinctTeams(mentions))
	}

	home, away, sc, err := n.orient(folded, post, mentions, scores)
	if err != nil {
		return domain.MatchEvent{}, err
	}

	return domain.MatchEvent{
		HomeTeam:    n.teams.teams[home].Name,
		AwayTeam:    n.teams.teams[away].Name,
		Score:       sc.score,
		ScoringSide: sc.side,
		Minute:      extractMinute(post.Title),
		Scorer:      extractScorer(post.Title),
		RawTitle:    post.Title,
		SourceURL:   post.URL,
		MediaURL:    post.MediaURL,
		Source:      post.Source,
		ObservedAt:  post.CreatedAt,
	}, nil
}

// orient picks the score pattern and decides home/away.
func (n *Normalizer) orient(folded string, post domain.CandidatePost, mentions []mention, scores []scoreMatch) (home, away int, sc scoreMatch, err error) {
	if l, r, s, ok := between(mentions, scores); ok {
		return l.team, r.team, s, nil
	}

	s := nearest(mentions, scores)
	first, second := firstTwoDistinct(mentions)

	if h, a, ok := n.hintOrder(post, first.team, second.team); ok {
		return h, a, s, nil
	}

	if first.end <= second.start && versusPattern.MatchString(folded[first.end:second.start]) {
		return first.team, second.team, s, nil
	}

	return 0, 0, scoreMatch{}, fmt.Errorf("%w: cannot order teams around score", errors.ErrParseRejected)
}

func (n *Normalizer) hintOrder(post domain.CandidatePost, a, b int) (home, away int, ok bool) {
	if post.HomeHint == "" || post.AwayHint == "" {
		return 0, 0, false
	}

	h, okH := n.teams.Canonical(post.HomeHint)
	w, okW := n.teams.Canonical(post.AwayHint)

	if !okH || !okW {
		return 0, 0, false
	}

	nameA, nameB := n.teams.teams[a].Name, n.teams.teams[b].Name

	switch {
	case h == nameA && w == nameB:
		return a, b, true
	case h == nameB && w == nameA:
		return b, a, true
	default:
		return 0, 0, false
	}
}

func (n *Normalizer) hasGoalSignal(folded string, scores []scoreMatch) bool {
	for _, s := range scores {
		if s.bracketed {
			return true
		}
	}

	for _, kw := range n.keywords {
		if containsWord(folded, kw) {
			return true
		}
	}

	return false
}

type scoreMatch struct {
	start     int
	end       int
	score     domain.Score
	side      domain.Side
	bracketed bool
}

func findScores(folded string) []scoreMatch {
	var out []scoreMatch

	for _, loc := range scorePattern.FindAllStringSubmatchIndex(folded, -1) {
		start, end := loc[0], loc[1]
		if digitAt(folded, start-1) || digitAt(folded, end) {
			continue
		}

		group := func(i int) string {
			if loc[2*i] < 0 {
				return ""
			}

			return folded[loc[2*i]:loc[2*i+1]]
		}

		m := scoreMatch{start: start, end: end}

		if group(1) != "" {
			m.score = domain.Score{Home: atoi(group(1)), Away: atoi(group(2))}
			m.bracketed = true
		} else {
			m.score = domain.Score{Home: atoi(group(4)), Away: atoi(group(7))}

			switch {
			case group(3) == "[" && group(5) == "]":
				m.side = domain.SideHome
			case group(6) == "[" && group(8) == "]":
				m.side = domain.SideAway
			}

			m.bracketed = m.side != domain.SideUnknown
		}

		out = append(out, m)
	}

	return out
}

func digitAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}

	return unicode.IsDigit(rune(s[i]))
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s) //nolint:errcheck // regexp guarantees digits

	return v
}

func withoutScoreOverlap(mentions []mention, scores []scoreMatch) []mention {
	out := make([]mention, 0, len(mentions))

	for _, m := range mentions {
		overlap := false

		for _, s := range scores {
			if m.start < s.end && s.start < m.end {
				overlap = true
				break
			}
		}

		if !overlap {
			out = append(out, m)
		}
	}

	return out
}

func distinctTeams(mentions []mention) int {
	seen := make(map[int]struct{}, len(mentions))
	for _, m := range mentions {
		seen[m.team] = struct{}{}
	}

	return len(seen)
}

func firstTwoDistinct(mentions []mention) (mention, mention) {
	first := mentions[0]

	for _, m := range mentions[1:] {
		if m.team != first.team {
			return first, m
		}
	}

	return first, first
}

// between finds the score flanked by two different teams with the smallest gap.
func between(mentions []mention, scores []scoreMatch) (left, right mention, sc scoreMatch, ok bool) {
	bestGap := -1

	for _, s := range scores {
		l, hasL := lastBefore(mentions, s.start)
		r, hasR := firstAfter(mentions, s.end)

		if !hasL || !hasR || l.team == r.team {
			continue
		}

		gap := (s.start - l.end) + (r.start - s.end)
		if bestGap < 0 || gap < bestGap {
			bestGap = gap
			left, right, sc, ok = l, r, s, true
		}
	}

	return left, right, sc, ok
}

func lastBefore(mentions []mention, pos int) (mention, bool) {
	for i := len(mentions) - 1; i >= 0; i-- {
		if mentions[i].end <= pos {
			return mentions[i], true
		}
	}

	return mention{}, false
}

func firstAfter(mentions []mention, pos int) (mention, bool) {
	for _, m := range mentions {
		if m.start >= pos {
			return m, true
		}
	}

	return mention{}, false
}

// nearest returns the score closest to any team mention.
func nearest(mentions []mention, scores []scoreMatch) scoreMatch {
	best, bestDist := scores[0], -1

	for _, s := range scores {
		for _, m := range mentions {
			d := distance(m, s)
			if bestDist < 0 || d < bestDist {
				best, bestDist = s, d
			}
		}
	}

	return best
}

func distance(m mention, s scoreMatch) int {
	switch {
	case m.end <= s.start:
		return s.start - m.end
	case s.end <= m.start:
		return m.start - s.end
	default:
		return 0
	}
}

func extractMinute(title string) string {
	m := minutePattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}

	return m[1] + "'"
}

func extractScorer(title string) string {
	m := scorerPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}

	return strings.Trim(strings.TrimSpace(m[1]), "()[],")
}
