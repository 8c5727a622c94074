package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source identifies which feed produced a candidate post.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// CandidatePost is a raw feed item that may describe a goal.
type CandidatePost struct {
	Title     string
	URL       string
	CreatedAt time.Time
	Source    Source

	// Optional feed metadata.
	Permalink string
	MediaURL  string
	HomeHint  string
	AwayHint  string
}

// Score is a home-first goal tally.
type Score struct {
	Home int
	Away int
}

func (s Score) String() string {
	return strconv.Itoa(s.Home) + "-" + strconv.Itoa(s.Away)
}

// Swap returns the score seen from the other side.
func (s Score) Swap() Score {
	return Score{Home: s.Away, Away: s.Home}
}

// Side marks which team a score update belongs to.
type Side string

const (
	SideUnknown Side = ""
	SideHome    Side = "home"
	SideAway    Side = "away"
)

// MatchEvent is the normalized form of a goal post.
type MatchEvent struct {
	HomeTeam    string
	AwayTeam    string
	Score       Score
	ScoringSide Side
	Minute      string
	Scorer      string
	RawTitle    string
	SourceURL   string
	MediaURL    string
	Source      Source
	ObservedAt  time.Time
}

// Key returns the dedup identity of the event.
func (e MatchEvent) Key() DedupKey {
	return NewDedupKey(e.HomeTeam, e.AwayTeam, e.Score)
}

// ScoringTeam returns the canonical name of the scoring team, if known.
func (e MatchEvent) ScoringTeam() string {
	switch e.ScoringSide {
	case SideHome:
		return e.HomeTeam
	case SideAway:
		return e.AwayTeam
	default:
		return ""
	}
}

// DedupKey identifies one real-world score state of a match. The team pair is
// unordered; the score is stored relative to the lexically first team so that
// "A 2-1 B" and "B 1-2 A" collide.
type DedupKey struct {
	TeamA string
	TeamB string
	Score Score
}

// NewDedupKey builds the canonical key for a home/away pair and score.
func NewDedupKey(home, away string, score Score) DedupKey {
	if home <= away {
		return DedupKey{TeamA: home, TeamB: away, Score: score}
	}

	return DedupKey{TeamA: away, TeamB: home, Score: score.Swap()}
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.TeamA, k.TeamB, k.Score)
}

// IsZero reports whether the key is unset.
func (k DedupKey) IsZero() bool {
	return k.TeamA == "" && k.TeamB == ""
}

// ParseDedupKey is the inverse of DedupKey.String.
func ParseDedupKey(s string) (DedupKey, error) {
	var (
		key        DedupKey
		home, away int
	)

	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return key, fmt.Errorf("parse dedup key %q: want 3 fields, got %d", s, len(parts))
	}

	if _, err := fmt.Sscanf(parts[2], "%d-%d", &home, &away); err != nil {
		return key, fmt.Errorf("parse dedup key %q: %w", s, err)
	}

	return DedupKey{TeamA: parts[0], TeamB: parts[1], Score: Score{Home: home, Away: away}}, nil
}

// HistoryRecord is one persisted emission.
type HistoryRecord struct {
	Key       DedupKey
	SourceURL string
	EmittedAt time.Time
}

// EventState is the pipeline state of a MatchEvent.
type EventState string

const (
	StateReceived           EventState = "received"
	StateFilteredOut        EventState = "filtered_out"
	StateDuplicate          EventState = "duplicate"
	StateResolving          EventState = "resolving"
	StateResolved           EventState = "resolved"
	StateEmitted            EventState = "emitted"
	StateFailed             EventState = "failed"
	StateDropped            EventState = "dropped"
	StateEmittedWithoutClip EventState = "emitted_without_clip"
)

// Terminal reports whether no further transition can happen.
func (s EventState) Terminal() bool {
	switch s {
	case StateFilteredOut, StateDuplicate, StateEmitted, StateDropped, StateEmittedWithoutClip:
		return true
	default:
		return false
	}
}

// ResolutionAttempt tracks the in-memory retry state for one pending event.
type ResolutionAttempt struct {
	ID          string
	SourceURL   string
	MediaURL    string
	Host        string
	Count       int
	LastError   error
	NextRetryAt time.Time
}

// EmitRequest is handed to notification transports.
type EmitRequest struct {
	HomeTeam    string
	AwayTeam    string
	Score       Score
	ScoringTeam string
	Minute      string
	Scorer      string
	Title       string
	ClipURL     string
	SourceURL   string
	Permalink   string
}

// HasClip reports whether a resolved clip is attached.
func (r EmitRequest) HasClip() bool {
	return r.ClipURL != ""
}
