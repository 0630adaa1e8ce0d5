// Package dataset provides the data collaborators behind the tool handlers:
// an in-memory dataset loaded from CSV exports, a Postgres-backed dataset
// and the risk analyzer built on either.
package dataset

import (
	"context"
	"sort"
	"strings"

	"github.com/gisa-chat/server/internal/agent/model"
)

// Tables is the raw content of a MemoryDataset.
type Tables struct {
	Piani          []model.Piano
	Activities     []model.PianoActivity
	Establishments []model.Establishment
	Controls       []model.ControlRecord
	Risk           []model.RiskScore
	Progress       []model.PlanProgress
}

// MemoryDataset answers queries from tables held in memory. It is read-only
// after construction and safe for concurrent use.
type MemoryDataset struct {
	t      Tables
	byCode map[string]int
	byID   map[string]int
}

var _ model.Dataset = (*MemoryDataset)(nil)

func NewMemoryDataset(t Tables) *MemoryDataset {
	d := &MemoryDataset{
		t:      t,
		byCode: make(map[string]int, len(t.Piani)),
		byID:   make(map[string]int, len(t.Establishments)),
	}
	for i, p := range t.Piani {
		d.byCode[normCode(p.Code)] = i
	}
	for i, e := range t.Establishments {
		d.byID[strings.TrimSpace(e.ID)] = i
	}
	return d
}

func normCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// matches treats an empty filter as "any".
func matches(filter, value string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || strings.EqualFold(filter, strings.TrimSpace(value))
}

func (d *MemoryDataset) Piani(context.Context) ([]model.Piano, error) {
	out := append([]model.Piano(nil), d.t.Piani...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (d *MemoryDataset) Piano(_ context.Context, code string) (*model.Piano, error) {
	i, ok := d.byCode[normCode(code)]
	if !ok {
		return nil, nil
	}
	p := d.t.Piani[i]
	return &p, nil
}

func (d *MemoryDataset) PianoActivities(_ context.Context, code string) ([]model.PianoActivity, error) {
	code = normCode(code)
	out := []model.PianoActivity{}
	for _, a := range d.t.Activities {
		if normCode(a.PianoCode) == code {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Activity < out[j].Activity })
	return out, nil
}

// PianoEstablishments returns the establishments controlled under the plan.
func (d *MemoryDataset) PianoEstablishments(_ context.Context, code, asl string) ([]model.Establishment, error) {
	code = normCode(code)
	seen := map[string]struct{}{}
	out := []model.Establishment{}
	for _, c := range d.t.Controls {
		if normCode(c.PianoCode) != code {
			continue
		}
		i, ok := d.byID[strings.TrimSpace(c.EstablishmentID)]
		if !ok {
			continue
		}
		e := d.t.Establishments[i]
		if _, dup := seen[e.ID]; dup || !matches(asl, e.ASL) {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	sortEstablishments(out)
	return out, nil
}

func (d *MemoryDataset) Establishments(_ context.Context, asl, comune string) ([]model.Establishment, error) {
	out := []model.Establishment{}
	for _, e := range d.t.Establishments {
		if matches(asl, e.ASL) && matches(comune, e.Comune) {
			out = append(out, e)
		}
	}
	sortEstablishments(out)
	return out, nil
}

func (d *MemoryDataset) EstablishmentHistory(_ context.Context, id string) ([]model.ControlRecord, error) {
	id = strings.TrimSpace(id)
	out := []model.ControlRecord{}
	for _, c := range d.t.Controls {
		if strings.TrimSpace(c.EstablishmentID) == id {
			out = append(out, c)
		}
	}
	sortControls(out)
	return out, nil
}

func (d *MemoryDataset) Controls(_ context.Context, asl string) ([]model.ControlRecord, error) {
	out := []model.ControlRecord{}
	for _, c := range d.t.Controls {
		if matches(asl, c.ASL) {
			out = append(out, c)
		}
	}
	sortControls(out)
	return out, nil
}

func (d *MemoryDataset) RiskScores(_ context.Context, asl string) ([]model.RiskScore, error) {
	out := []model.RiskScore{}
	for _, r := range d.t.Risk {
		if matches(asl, r.ASL) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *MemoryDataset) NonConformities(_ context.Context, asl, category string) ([]model.ControlRecord, error) {
	out := []model.ControlRecord{}
	for _, c := range d.t.Controls {
		if c.NCCount > 0 && matches(asl, c.ASL) && matches(category, c.NCCategory) {
			out = append(out, c)
		}
	}
	sortControls(out)
	return out, nil
}

func (d *MemoryDataset) PlanProgress(_ context.Context, asl, uoc string) ([]model.PlanProgress, error) {
	out := []model.PlanProgress{}
	for _, p := range d.t.Progress {
		if matches(asl, p.ASL) && matches(uoc, p.UOC) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PianoCode < out[j].PianoCode })
	return out, nil
}

func sortEstablishments(es []model.Establishment) {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Name != es[j].Name {
			return es[i].Name < es[j].Name
		}
		return es[i].ID < es[j].ID
	})
}

// sortControls orders newest first.
func sortControls(cs []model.ControlRecord) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Date.After(cs[j].Date) })
}
