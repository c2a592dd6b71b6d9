package geo

import (
	"fmt"
	"strings"
)

// Gate decides when role repair may move values between slots.
type Gate int

const (
	// GateMisplaced requires at least two detected values that do not sit in
	// the slot of their detected role. Only those values move.
	GateMisplaced Gate = iota

	// GateLegacy requires at least two distinct detected roles and rewrites
	// all three slots, blanking any role that was not detected. It is not
	// idempotent: values filled by one run can count as detected roles on
	// the next and move again.
	//
	// Deprecated: superseded by GateMisplaced, which leaves correctly placed
	// values alone. Kept for reproducing old runs.
	GateLegacy
)

func (g Gate) String() string {
	if g == GateLegacy {
		return "legacy"
	}
	return "misplaced"
}

// ParseGate accepts "misplaced" (or empty) and "legacy".
func ParseGate(s string) (Gate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "misplaced":
		return GateMisplaced, nil
	case "legacy":
		return GateLegacy, nil
	default:
		return 0, fmt.Errorf("geo: unknown gate %q", s)
	}
}

// State is a step of the per-row reducer.
type State int

const (
	StateRaw State = iota
	StateRoleChecked
	StateSwapped
	StateUnchanged
	StateCityFilled
	StateRegionFallbackCountry
	StateRegionFallbackStateCountry
	StateComplete
	StateFlaggedMissing
)

var stateNames = [...]string{
	"RAW", "ROLE_CHECKED", "SWAPPED", "UNCHANGED", "CITY_FILLED",
	"REGION_FALLBACK_COUNTRY", "REGION_FALLBACK_STATE_COUNTRY",
	"COMPLETE", "FLAGGED_MISSING",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Fields are the four geo values of one row, trimmed.
type Fields struct {
	City    string
	State   string
	Country string
	Region  string
}

const (
	slotCity = iota
	slotState
	slotCountry
	slotRegion
)

func (f Fields) slots() [4]string { return [4]string{f.City, f.State, f.Country, f.Region} }

func fromSlots(s [4]string) Fields {
	return Fields{City: s[slotCity], State: s[slotState], Country: s[slotCountry], Region: s[slotRegion]}
}

// Outcome is what Resolve decided for one row.
type Outcome struct {
	Fields Fields
	// Changed flags city, state, country, region in that order.
	Changed [4]bool
	Swapped bool
	// Trace lists the states the row passed through, ending in a terminal
	// state.
	Trace   []State
	Missing *MissingEntry
}

// State is the terminal state.
func (o Outcome) State() State {
	if len(o.Trace) == 0 {
		return StateRaw
	}
	return o.Trace[len(o.Trace)-1]
}

// Any reports whether at least one field changed.
func (o Outcome) Any() bool {
	return o.Changed[0] || o.Changed[1] || o.Changed[2] || o.Changed[3]
}

func roleSlot(r Role) int {
	switch r {
	case RoleCity:
		return slotCity
	case RoleState:
		return slotState
	default:
		return slotCountry
	}
}

// Resolve reduces one row. in is not modified; the returned Fields are the
// values to commit.
func Resolve(ix *Index, in Fields, gate Gate) Outcome {
	orig := trimmed(in)
	cur := orig.slots()
	out := Outcome{Trace: []State{StateRaw}}

	// Role repair.
	var detected [3]Role
	byRole := map[Role]int{} // role -> slot holding its value; last field wins
	for s := slotCity; s <= slotCountry; s++ {
		detected[s] = ix.Detect(cur[s])
		if detected[s] != RoleNone {
			byRole[detected[s]] = s
		}
	}
	out.Trace = append(out.Trace, StateRoleChecked)

	before := cur
	switch gate {
	case GateLegacy:
		if len(byRole) >= 2 {
			var next [3]string
			for _, r := range []Role{RoleCity, RoleState, RoleCountry} {
				if s, ok := byRole[r]; ok {
					next[roleSlot(r)] = before[s]
				}
			}
			copy(cur[:3], next[:])
		}
	default:
		misplaced := 0
		for r, s := range byRole {
			if before[roleSlot(r)] != before[s] {
				misplaced++
			}
		}
		if misplaced >= 2 {
			filled := map[int]bool{}
			for r, s := range byRole {
				cur[roleSlot(r)] = before[s]
				filled[roleSlot(r)] = true
			}
			// A value that moved out of its slot must not stay behind as
			// well when nothing replaced it.
			for r, s := range byRole {
				if roleSlot(r) != s && !filled[s] {
					cur[s] = ""
				}
			}
		}
	}
	if cur != before {
		out.Swapped = true
		out.Trace = append(out.Trace, StateSwapped)
	} else {
		out.Trace = append(out.Trace, StateUnchanged)
	}

	// City-keyed fill: canonical values overwrite whatever differs.
	if rec, ok := ix.City(cur[slotCity]); ok {
		set := func(slot int, v string) {
			if v != "" && cur[slot] != v {
				cur[slot] = v
			}
		}
		set(slotState, rec.State)
		set(slotCountry, rec.Country)
		set(slotRegion, rec.Region)
		set(slotCity, rec.City)
		out.Trace = append(out.Trace, StateCityFilled)
	}

	if cur[slotRegion] == "" && cur[slotCountry] != "" {
		if r, ok := ix.CountryRegion(cur[slotCountry]); ok {
			cur[slotRegion] = r
			out.Trace = append(out.Trace, StateRegionFallbackCountry)
		}
	}

	if cur[slotRegion] == "" && cur[slotState] != "" && cur[slotCountry] != "" {
		if r, ok := ix.StateCountryRegion(cur[slotState], cur[slotCountry]); ok {
			cur[slotRegion] = r
			out.Trace = append(out.Trace, StateRegionFallbackStateCountry)
		}
	}

	out.Fields = fromSlots(cur)
	o := orig.slots()
	for k := range cur {
		out.Changed[k] = cur[k] != o[k]
	}

	if out.Fields.Country != "" && out.Fields.Region != "" {
		out.Trace = append(out.Trace, StateComplete)
		return out
	}
	out.Trace = append(out.Trace, StateFlaggedMissing)
	if out.Fields.City != "" || out.Fields.State != "" {
		e := newMissingEntry(out.Fields)
		out.Missing = &e
	}
	return out
}

func trimmed(f Fields) Fields {
	return Fields{
		City:    strings.TrimSpace(f.City),
		State:   strings.TrimSpace(f.State),
		Country: strings.TrimSpace(f.Country),
		Region:  strings.TrimSpace(f.Region),
	}
}
