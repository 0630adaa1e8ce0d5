package model

import (
	"context"
	"time"
)

// Piano is a monitoring/control plan.
type Piano struct {
	Code        string `json:"code" db:"code"`
	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`
	Area        string `json:"area" db:"area"`
}

// PianoActivity is an activity a plan covers.
type PianoActivity struct {
	PianoCode string `json:"piano_code" db:"piano_code"`
	Activity  string `json:"activity" db:"activity"`
	Category  string `json:"category" db:"category"`
}

// Establishment is a registered food business operator site.
type Establishment struct {
	ID       string `json:"id" db:"id"` // registration number
	Name     string `json:"name" db:"name"`
	ASL      string `json:"asl" db:"asl"`
	Comune   string `json:"comune" db:"comune"`
	Activity string `json:"activity" db:"activity"`
	Category string `json:"category" db:"category"`
}

// ControlRecord is one official control performed on an establishment.
type ControlRecord struct {
	EstablishmentID string    `json:"establishment_id" db:"establishment_id"`
	PianoCode       string    `json:"piano_code" db:"piano_code"`
	ASL             string    `json:"asl" db:"asl"`
	Date            time.Time `json:"date" db:"date"`
	Outcome         string    `json:"outcome" db:"outcome"`
	NCCount         int       `json:"nc_count" db:"nc_count"`
	NCCategory      string    `json:"nc_category" db:"nc_category"`
}

// RiskScore is the risk weight the analytics layer assigns to an activity.
type RiskScore struct {
	ASL      string  `json:"asl" db:"asl"`
	Activity string  `json:"activity" db:"activity"`
	Category string  `json:"category" db:"category"`
	Score    float64 `json:"score" db:"score"`
	NCCount  int     `json:"nc_count" db:"nc_count"`
}

// PlanProgress is the planned vs executed control count of a plan.
type PlanProgress struct {
	PianoCode string `json:"piano_code" db:"piano_code"`
	ASL       string `json:"asl" db:"asl"`
	UOC       string `json:"uoc" db:"uoc"`
	Planned   int    `json:"planned" db:"planned"`
	Executed  int    `json:"executed" db:"executed"`
}

// Delayed reports whether fewer controls than planned were executed.
func (p PlanProgress) Delayed() bool {
	return p.Executed < p.Planned
}

// Missing is the number of controls still to execute.
func (p PlanProgress) Missing() int {
	if p.Executed >= p.Planned {
		return 0
	}
	return p.Planned - p.Executed
}

// Dataset is the data access surface the tool handlers depend on.
// Filters given as "" are not applied.
type Dataset interface {
	Piani(ctx context.Context) ([]Piano, error)
	// Piano returns nil, nil when the code is unknown.
	Piano(ctx context.Context, code string) (*Piano, error)
	PianoActivities(ctx context.Context, code string) ([]PianoActivity, error)
	PianoEstablishments(ctx context.Context, code, asl string) ([]Establishment, error)
	Establishments(ctx context.Context, asl, comune string) ([]Establishment, error)
	EstablishmentHistory(ctx context.Context, id string) ([]ControlRecord, error)
	Controls(ctx context.Context, asl string) ([]ControlRecord, error)
	RiskScores(ctx context.Context, asl string) ([]RiskScore, error)
	NonConformities(ctx context.Context, asl, category string) ([]ControlRecord, error)
	PlanProgress(ctx context.Context, asl, uoc string) ([]PlanProgress, error)
}
