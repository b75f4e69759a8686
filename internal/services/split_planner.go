package services

import (
	"sort"
	"strings"

	"github.com/sidingops/rakeserial/internal/database"
)

// IndentLoad is the loaded bag total of one indent.
type IndentLoad struct {
	Indent      string
	TotalLoaded int
}

// PlanStep is one indent in a split plan. Target is filled in when serials are claimed.
type PlanStep struct {
	Indent        string
	KeepsOriginal bool
	Target        string
}

// SplitPlan describes how a serial is broken up by indent.
type SplitPlan struct {
	OriginalSerial string
	Mode           database.SplitMode
	FirstStarter   string
	Steps          []PlanStep
}

// PlanSplit orders the indents and picks which one keeps the original serial.
//
// Unique mode: the first starter is the smallest indent number with bags loaded;
// it keeps the original serial and every other indent gets a new one. With no
// loading anywhere, every indent gets a new serial.
//
// Shared mode: every indent keeps the original serial.
func PlanSplit(original string, mode database.SplitMode, loads []IndentLoad) (SplitPlan, error) {
	plan := SplitPlan{OriginalSerial: original, Mode: mode}

	totals := make(map[string]int, len(loads))
	for _, l := range loads {
		id := strings.TrimSpace(l.Indent)
		if id == "" {
			continue
		}
		totals[id] += l.TotalLoaded
	}

	indents := make([]string, 0, len(totals))
	for id := range totals {
		indents = append(indents, id)
	}
	sort.Strings(indents)

	if len(indents) == 0 {
		if mode == database.SplitUnique {
			return plan, ErrNoIndents
		}
		return plan, nil
	}

	if mode == database.SplitUnique {
		for _, id := range indents {
			if totals[id] > 0 {
				plan.FirstStarter = id
				break
			}
		}
	}

	for _, id := range indents {
		keeps := mode == database.SplitShared || id == plan.FirstStarter
		step := PlanStep{Indent: id, KeepsOriginal: keeps}
		if keeps {
			step.Target = original
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

// AssignTargets fills in the serial of every step that does not keep the
// original, in indent order, each minted after the previously minted one.
func (p *SplitPlan) AssignTargets(mintAfter func(prev string) (string, error)) error {
	prev := p.OriginalSerial
	for i := range p.Steps {
		if p.Steps[i].KeepsOriginal {
			p.Steps[i].Target = p.OriginalSerial
			continue
		}
		next, err := mintAfter(prev)
		if err != nil {
			return err
		}
		p.Steps[i].Target = next
		prev = next
	}
	return nil
}

// Reassigned maps each indent to its target serial.
func (p SplitPlan) Reassigned() map[string]string {
	out := make(map[string]string, len(p.Steps))
	for _, st := range p.Steps {
		out[st.Indent] = st.Target
	}
	return out
}
