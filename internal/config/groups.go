package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/Kerhoff/rollcall/internal/models"
)

// groupIDPattern keeps ids safe to embed in file names.
var groupIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Groups is the parsed groups file.
type Groups struct {
	Default string               `yaml:"default"`
	Groups  []models.GroupConfig `yaml:"groups"`
}

// LoadGroups reads and validates the groups file. JSON is accepted too since
// it is a subset of YAML.
func LoadGroups(path string) (*Groups, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}
	return ParseGroups(data)
}

// ParseGroups decodes and validates a groups document.
func ParseGroups(data []byte) (*Groups, error) {
	var groups Groups
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&groups); err != nil {
		return nil, fmt.Errorf("failed to decode groups file: %w", err)
	}

	for i := range groups.Groups {
		g := &groups.Groups[i]
		g.ID = strings.TrimSpace(g.ID)
		g.RosterRef = strings.TrimSpace(g.RosterRef)
		if g.DisplayName == "" {
			g.DisplayName = g.ID
		}
	}
	if groups.Default == "" && len(groups.Groups) > 0 {
		groups.Default = groups.Groups[0].ID
	}

	if err := groups.validate(); err != nil {
		return nil, err
	}
	return &groups, nil
}

func (g *Groups) validate() error {
	var result *multierror.Error

	if len(g.Groups) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one group is required"))
	}

	seen := make(map[string]bool, len(g.Groups))
	for i, group := range g.Groups {
		if group.ID == "" {
			result = multierror.Append(result, fmt.Errorf("group %d: id is required", i))
			continue
		}
		if !groupIDPattern.MatchString(group.ID) {
			result = multierror.Append(result, fmt.Errorf("group %q: id may only contain letters, digits, '-' and '_'", group.ID))
		}
		if seen[group.ID] {
			result = multierror.Append(result, fmt.Errorf("group %s: duplicate id", group.ID))
		}
		seen[group.ID] = true
		if group.RosterRef == "" {
			result = multierror.Append(result, fmt.Errorf("group %s: roster is required", group.ID))
		}
	}

	if g.Default != "" && len(g.Groups) > 0 && !seen[g.Default] {
		result = multierror.Append(result, fmt.Errorf("default group %s is not defined", g.Default))
	}

	return result.ErrorOrNil()
}
