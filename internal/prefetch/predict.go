package prefetch

import (
	"strings"

	"github.com/Borislavv/go-ash-imgcache/model"
)

// predict derives at most limit sections likely to be viewed next. Candidates come, in order,
// from known transitions of the most recent section, from declared preferences matched as id
// prefixes, and from neighbours of recently viewed sections. Recently viewed sections are excluded.
func predict(uc model.UserContext, all []model.Section, limit int) []model.Section {
	if limit <= 0 || len(all) == 0 {
		return nil
	}

	pos := make(map[string]int, len(all))
	for i, s := range all {
		pos[s.ID] = i
	}
	seen := make(map[string]struct{}, len(uc.RecentSections)+limit)
	for _, id := range uc.RecentSections {
		seen[id] = struct{}{}
	}

	out := make([]model.Section, 0, limit)
	// add returns false once the limit is reached
	add := func(id string) bool {
		i, ok := pos[id]
		if !ok {
			return true
		}
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
		out = append(out, all[i])
		return len(out) < limit
	}

	if n := len(uc.RecentSections); n > 0 {
		for _, id := range uc.Transitions[uc.RecentSections[n-1]] {
			if !add(id) {
				return out
			}
		}
	}

	for _, pref := range uc.Preferences {
		if pref == "" {
			continue
		}
		for _, s := range all {
			if strings.HasPrefix(s.ID, pref) && !add(s.ID) {
				return out
			}
		}
	}

	for i := len(uc.RecentSections) - 1; i >= 0; i-- {
		p, ok := pos[uc.RecentSections[i]]
		if !ok {
			continue
		}
		for _, j := range [2]int{p + 1, p - 1} {
			if j >= 0 && j < len(all) && !add(all[j].ID) {
				return out
			}
		}
	}
	return out
}
