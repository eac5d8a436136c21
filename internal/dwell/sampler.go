package dwell

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/event"
)

// Anchor selects which endpoint of a dwell pair the time window filters on.
type Anchor string

// Window anchor modes.
const (
	AnchorStart Anchor = "start" // filter on t_from
	AnchorEnd   Anchor = "end"   // filter on t_to
	AnchorBoth  Anchor = "both"  // both endpoints must fall in the window
)

// ParseAnchor validates an anchor string. Unknown values are a caller bug
// and fail fast.
func ParseAnchor(s string) (Anchor, error) {
	switch Anchor(s) {
	case AnchorStart, AnchorEnd, AnchorBoth:
		return Anchor(s), nil
	case "":
		return AnchorStart, nil
	default:
		return "", fmt.Errorf("anchor %q unknown: want start|end|both", s)
	}
}

// Window is an inclusive [Start, End] time filter. A zero Start or End
// leaves that side unbounded.
type Window struct {
	Anchor Anchor
	Start  time.Time
	End    time.Time
}

// contains reports whether t passes the window bounds.
func (w Window) contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Params configures one sampling run.
type Params struct {
	StageFrom string
	StageTo   string
	Window    Window

	// CapMinutes drops pairs whose dwell exceeds it. Zero means no cap.
	// The boundary is inclusive: dwell == CapMinutes is kept.
	CapMinutes int

	// CensorFlowErrors drops units with an error-flagged event at any chain
	// stage strictly between t_from and t_to.
	CensorFlowErrors bool

	// CensorRepairs drops units with any event at a repair stage strictly
	// between t_from and t_to, regardless of error flag.
	CensorRepairs bool
}

// Pair is one unit's dwell sample between the configured stages.
// t_to > t_from strictly by construction; zero or negative intervals are
// excluded, never clipped.
type Pair struct {
	UnitID       string    `json:"unit_id"`
	TFrom        time.Time `json:"-"`
	TTo          time.Time `json:"-"`
	DwellMinutes int       `json:"dwell_minutes"`
}

// MarshalJSON renders the pair with wire-format timestamps.
func (p Pair) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"unit_id":%q,"t_from":%q,"t_to":%q,"dwell_minutes":%d}`,
		p.UnitID, event.FormatTime(p.TFrom), event.FormatTime(p.TTo), p.DwellMinutes)), nil
}

// Sampler extracts dwell pairs from a visit snapshot. The chain scopes
// flow-error censoring; repairStages scopes repair censoring.
type Sampler struct {
	chain        event.StageChain
	repairStages map[string]bool
}

// NewSampler creates a Sampler for the given chain and repair stage names.
func NewSampler(chain event.StageChain, repairStages []string) *Sampler {
	rs := make(map[string]bool, len(repairStages))
	for _, s := range repairStages {
		rs[s] = true
	}
	return &Sampler{chain: chain, repairStages: rs}
}

// Validate rejects parameter combinations that are caller bugs, before any
// computation starts.
func (s *Sampler) Validate(p Params) error {
	if _, err := ParseAnchor(string(p.Window.Anchor)); err != nil {
		return err
	}
	if !s.chain.Contains(p.StageFrom) {
		return fmt.Errorf("stage_from %q not in configured chain %v", p.StageFrom, s.chain.Stages())
	}
	if !s.chain.Contains(p.StageTo) {
		return fmt.Errorf("stage_to %q not in configured chain %v", p.StageTo, s.chain.Stages())
	}
	if p.StageFrom == p.StageTo {
		return fmt.Errorf("stage_from and stage_to must differ, both %q", p.StageFrom)
	}
	if p.CapMinutes < 0 {
		return fmt.Errorf("cap_minutes must not be negative, got %d", p.CapMinutes)
	}
	if !p.Window.Start.IsZero() && !p.Window.End.IsZero() && p.Window.End.Before(p.Window.Start) {
		return fmt.Errorf("window end %s before start %s",
			event.FormatTime(p.Window.End), event.FormatTime(p.Window.Start))
	}
	return nil
}

// Pairs builds one dwell pair per unit: t_from is the unit's earliest
// non-error visit at StageFrom, t_to the earliest non-error visit at StageTo
// strictly after t_from. Units missing either endpoint are dropped. Filters
// apply window first, then cap, then censoring, and the result is sorted by
// descending dwell (unit id breaks ties) for inspection use.
func (s *Sampler) Pairs(visits []event.Visit, p Params) ([]Pair, error) {
	if err := s.Validate(p); err != nil {
		return nil, err
	}
	if p.Window.Anchor == "" {
		p.Window.Anchor = AnchorStart
	}

	type unitEvents struct {
		from    []time.Time // non-error StageFrom visits
		to      []time.Time // non-error StageTo visits
		errored []time.Time // error-flagged visits at chain stages
		repairs []time.Time // visits at repair stages
	}
	units := make(map[string]*unitEvents)
	get := func(id string) *unitEvents {
		u, ok := units[id]
		if !ok {
			u = &unitEvents{}
			units[id] = u
		}
		return u
	}

	for _, v := range visits {
		u := get(v.UnitID)
		if !v.ErrorFlag {
			switch v.Stage {
			case p.StageFrom:
				u.from = append(u.from, v.Timestamp)
			case p.StageTo:
				u.to = append(u.to, v.Timestamp)
			}
		}
		if v.ErrorFlag && s.chain.Contains(v.Stage) {
			u.errored = append(u.errored, v.Timestamp)
		}
		if s.repairStages[v.Stage] {
			u.repairs = append(u.repairs, v.Timestamp)
		}
	}

	var out []Pair
	for id, u := range units {
		if len(u.from) == 0 || len(u.to) == 0 {
			continue
		}
		tFrom := earliest(u.from)
		tTo, ok := earliestAfter(u.to, tFrom)
		if !ok {
			continue
		}

		// Window filter.
		switch p.Window.Anchor {
		case AnchorStart:
			if !p.Window.contains(tFrom) {
				continue
			}
		case AnchorEnd:
			if !p.Window.contains(tTo) {
				continue
			}
		case AnchorBoth:
			if !p.Window.contains(tFrom) || !p.Window.contains(tTo) {
				continue
			}
		}

		// Cap filter. Dwell is a rounded whole number of minutes and must
		// stay strictly positive after rounding.
		dwellMin := int(math.Round(tTo.Sub(tFrom).Minutes()))
		if dwellMin <= 0 {
			continue
		}
		if p.CapMinutes > 0 && dwellMin > p.CapMinutes {
			continue
		}

		// Censoring.
		if p.CensorFlowErrors && anyStrictlyBetween(u.errored, tFrom, tTo) {
			continue
		}
		if p.CensorRepairs && anyStrictlyBetween(u.repairs, tFrom, tTo) {
			continue
		}

		out = append(out, Pair{UnitID: id, TFrom: tFrom, TTo: tTo, DwellMinutes: dwellMin})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DwellMinutes != out[j].DwellMinutes {
			return out[i].DwellMinutes > out[j].DwellMinutes
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out, nil
}

// Durations extracts the dwell minutes of pairs, in the pairs' order.
func Durations(pairs []Pair) []int {
	out := make([]int, len(pairs))
	for i, p := range pairs {
		out[i] = p.DwellMinutes
	}
	return out
}

func earliest(ts []time.Time) time.Time {
	m := ts[0]
	for _, t := range ts[1:] {
		if t.Before(m) {
			m = t
		}
	}
	return m
}

func earliestAfter(ts []time.Time, after time.Time) (time.Time, bool) {
	var m time.Time
	found := false
	for _, t := range ts {
		if !t.After(after) {
			continue
		}
		if !found || t.Before(m) {
			m = t
			found = true
		}
	}
	return m, found
}

func anyStrictlyBetween(ts []time.Time, lo, hi time.Time) bool {
	for _, t := range ts {
		if t.After(lo) && t.Before(hi) {
			return true
		}
	}
	return false
}
