package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed teams.yaml
var defaultTeamsYAML []byte

// Team is one canonical club with the spellings that refer to it.
type Team struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Exclude []string `yaml:"exclude"` // phrases containing an alias that name a different club
	Color   string   `yaml:"color"`   // #RRGGBB
	Badge   string   `yaml:"badge"`
}

// ColorValue returns the brand colour as an RGB integer, or 0 when unset or malformed.
func (t Team) ColorValue() int {
	hex := strings.TrimPrefix(strings.TrimSpace(t.Color), "#")
	if hex == "" {
		return 0
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0
	}

	return int(v)
}

// teamNameReserved holds the dedup key field separator.
const teamNameReserved = "|"

type teamsFile struct {
	Teams []Team `yaml:"teams"`
}

// LoadTeams returns the team table from path, or the built-in table when path is empty.
func LoadTeams(path string) ([]Team, error) {
	data := defaultTeamsYAML

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read teams file: %w", err)
		}

		data = raw
	}

	return ParseTeams(data)
}

// ParseTeams decodes a YAML team table and checks it for consistency.
func ParseTeams(data []byte) ([]Team, error) {
	var f teamsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse teams: %w", err)
	}

	if len(f.Teams) == 0 {
		return nil, fmt.Errorf("%w: team table is empty", errInvalidConfig)
	}

	seen := make(map[string]string)

	for i, t := range f.Teams {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("%w: team #%d has no name", errInvalidConfig, i)
		}

		// Canonical names are fields of the persisted dedup key.
		if strings.ContainsAny(t.Name, teamNameReserved) {
			return nil, fmt.Errorf("%w: team name %q contains one of %q", errInvalidConfig, t.Name, teamNameReserved)
		}

		if !containsFold(t.Aliases, t.Name) {
			f.Teams[i].Aliases = append([]string{t.Name}, t.Aliases...)
		}

		for _, a := range f.Teams[i].Aliases {
			k := strings.ToLower(strings.TrimSpace(a))
			if owner, ok := seen[k]; ok && owner != t.Name {
				return nil, fmt.Errorf("%w: alias %q used by %s and %s", errInvalidConfig, a, owner, t.Name)
			}

			seen[k] = t.Name
		}
	}

	return f.Teams, nil
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}

	return false
}
