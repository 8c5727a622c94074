package notify

import (
	"strconv"
	"strings"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

const defaultEmbedColor = 0x808080

// TeamDirectory looks up team metadata by canonical name.
type TeamDirectory map[string]config.Team

func NewTeamDirectory(teams []config.Team) TeamDirectory {
	d := make(TeamDirectory, len(teams))
	for _, t := range teams {
		d[t.Name] = t
	}

	return d
}

// Color returns the brand colour of the team, or grey when unknown.
func (d TeamDirectory) Color(name string) int {
	if t, ok := d[name]; ok {
		if c := t.ColorValue(); c != 0 {
			return c
		}
	}

	return defaultEmbedColor
}

// Badge returns the badge URL of the team, if any.
func (d TeamDirectory) Badge(name string) string {
	return d[name].Badge
}

// Headline renders "Home [1] - 0 Away - Scorer 12'", bracketing the scoring side.
func Headline(req domain.EmitRequest) string {
	home := strconv.Itoa(req.Score.Home)
	away := strconv.Itoa(req.Score.Away)

	switch req.ScoringTeam {
	case "":
	case req.HomeTeam:
		home = "[" + home + "]"
	case req.AwayTeam:
		away = "[" + away + "]"
	}

	var sb strings.Builder

	sb.WriteString(req.HomeTeam + " " + home + " - " + away + " " + req.AwayTeam)

	if detail := scorerLine(req); detail != "" {
		sb.WriteString(" - " + detail)
	}

	return sb.String()
}

func scorerLine(req domain.EmitRequest) string {
	return strings.TrimSpace(req.Scorer + " " + req.Minute)
}
