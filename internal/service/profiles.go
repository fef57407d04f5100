package service

import (
	"fmt"
	"sort"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/selector"
)

// Built-in profile names.
const (
	ProfileDefault = "default"
	ProfileShorts  = "shorts"
	ProfileAudio   = "audio"
)

// Profiles maps a profile name to its tiers in evaluation order.
type Profiles map[string][]selector.Tier

// DefaultProfiles returns the built-in tier profiles. Short-form sources
// evaluate ascending so the smallest acceptable file is offered first.
func DefaultProfiles() Profiles {
	return Profiles{
		ProfileDefault: {
			{Quality: domain.Quality720p, CeilingMB: 300},
			{Quality: domain.Quality480p, CeilingMB: 300},
			{Quality: domain.Quality360p, CeilingMB: 300},
		},
		ProfileShorts: {
			{Quality: domain.Quality360p, CeilingMB: 50},
			{Quality: domain.Quality480p, CeilingMB: 50},
			{Quality: domain.Quality720p, CeilingMB: 50},
		},
		ProfileAudio: {
			{Quality: domain.QualityAudio, CeilingMB: 50},
		},
	}
}

// ProfilesFromConfig returns the built-in profiles with configured profiles
// replacing or extending them.
func ProfilesFromConfig(cfg config.SelectionConfig) (Profiles, error) {
	profiles := DefaultProfiles()
	for name, tiers := range cfg.Profiles {
		if len(tiers) == 0 {
			return nil, fmt.Errorf("profile %q: no tiers", name)
		}
		out := make([]selector.Tier, 0, len(tiers))
		for _, tc := range tiers {
			t, err := selector.NewTier(tc.Quality, tc.CeilingMB)
			if err != nil {
				return nil, fmt.Errorf("profile %q: %w", name, err)
			}
			out = append(out, t)
		}
		profiles[name] = out
	}
	return profiles, nil
}

// Names returns the profile names sorted.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tiers returns the tiers of name, where "" means the default profile.
func (p Profiles) Tiers(name string) ([]selector.Tier, error) {
	if name == "" {
		name = ProfileDefault
	}
	tiers, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProfile, name)
	}
	return tiers, nil
}
