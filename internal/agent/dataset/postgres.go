package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/gisa-chat/server/internal/agent/model"
	errx "github.com/gisa-chat/server/internal/core/error"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// DB is the query surface shared by pgxpool.Pool and pgxmock.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var (
	pianoColumns         = []string{"code", "title", "description", "area"}
	activityColumns      = []string{"piano_code", "activity", "category"}
	establishmentColumns = []string{"e.id", "e.name", "e.asl", "e.comune", "e.activity", "e.category"}
	controlColumns       = []string{"establishment_id", "piano_code", "asl", "date", "outcome", "nc_count", "nc_category"}
	riskColumns          = []string{"asl", "activity", "category", "score", "nc_count"}
	progressColumns      = []string{"piano_code", "asl", "uoc", "planned", "executed"}
)

// PostgresDataset reads the control-plan tables from Postgres.
type PostgresDataset struct {
	db DB
}

var _ model.Dataset = (*PostgresDataset)(nil)

func NewPostgresDataset(db DB) *PostgresDataset {
	return &PostgresDataset{db: db}
}

func psql() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// eqFold adds a case-insensitive equality filter when value is set.
func eqFold(b squirrel.SelectBuilder, column, value string) squirrel.SelectBuilder {
	value = strings.TrimSpace(value)
	if value == "" {
		return b
	}
	return b.Where(squirrel.Expr(fmt.Sprintf("UPPER(%s) = UPPER(?)", column), value))
}

func selectInto[T any](ctx context.Context, db DB, b squirrel.SelectBuilder, what string) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", what, err)
	}
	out := []T{}
	if err := pgxscan.Select(ctx, db, &out, query, args...); err != nil {
		logx.Error().Err(err).Str("query", what).Msg("dataset query failed")
		return nil, errx.WrapPostgres(err)
	}
	return out, nil
}

func (d *PostgresDataset) Piani(ctx context.Context) ([]model.Piano, error) {
	b := psql().Select(pianoColumns...).From("piani").OrderBy("code")
	return selectInto[model.Piano](ctx, d.db, b, "piani")
}

func (d *PostgresDataset) Piano(ctx context.Context, code string) (*model.Piano, error) {
	query, args, err := psql().Select(pianoColumns...).From("piani").
		Where(squirrel.Eq{"code": normCode(code)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build piano query: %w", err)
	}
	var p model.Piano
	if err := pgxscan.Get(ctx, d.db, &p, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		logx.Error().Err(err).Str("piano_code", code).Msg("piano lookup failed")
		return nil, errx.WrapPostgres(err)
	}
	return &p, nil
}

func (d *PostgresDataset) PianoActivities(ctx context.Context, code string) ([]model.PianoActivity, error) {
	b := psql().Select(activityColumns...).From("piani_attivita").
		Where(squirrel.Eq{"piano_code": normCode(code)}).
		OrderBy("activity")
	return selectInto[model.PianoActivity](ctx, d.db, b, "piano_activities")
}

func (d *PostgresDataset) PianoEstablishments(ctx context.Context, code, asl string) ([]model.Establishment, error) {
	b := psql().Select(establishmentColumns...).Distinct().
		From("stabilimenti e").
		Join("controlli c ON c.establishment_id = e.id").
		Where(squirrel.Eq{"c.piano_code": normCode(code)})
	b = eqFold(b, "e.asl", asl).OrderBy("e.name", "e.id")
	return selectInto[model.Establishment](ctx, d.db, b, "piano_establishments")
}

func (d *PostgresDataset) Establishments(ctx context.Context, asl, comune string) ([]model.Establishment, error) {
	b := psql().Select(establishmentColumns...).From("stabilimenti e")
	b = eqFold(b, "e.asl", asl)
	b = eqFold(b, "e.comune", comune).OrderBy("e.name", "e.id")
	return selectInto[model.Establishment](ctx, d.db, b, "establishments")
}

func (d *PostgresDataset) EstablishmentHistory(ctx context.Context, id string) ([]model.ControlRecord, error) {
	b := psql().Select(controlColumns...).From("controlli").
		Where(squirrel.Eq{"establishment_id": strings.TrimSpace(id)}).
		OrderBy("date DESC")
	return selectInto[model.ControlRecord](ctx, d.db, b, "establishment_history")
}

func (d *PostgresDataset) Controls(ctx context.Context, asl string) ([]model.ControlRecord, error) {
	b := eqFold(psql().Select(controlColumns...).From("controlli"), "asl", asl).OrderBy("date DESC")
	return selectInto[model.ControlRecord](ctx, d.db, b, "controls")
}

func (d *PostgresDataset) RiskScores(ctx context.Context, asl string) ([]model.RiskScore, error) {
	b := eqFold(psql().Select(riskColumns...).From("rischio"), "asl", asl)
	return selectInto[model.RiskScore](ctx, d.db, b, "risk_scores")
}

func (d *PostgresDataset) NonConformities(ctx context.Context, asl, category string) ([]model.ControlRecord, error) {
	b := psql().Select(controlColumns...).From("controlli").Where(squirrel.Gt{"nc_count": 0})
	b = eqFold(b, "asl", asl)
	b = eqFold(b, "nc_category", category).OrderBy("date DESC")
	return selectInto[model.ControlRecord](ctx, d.db, b, "non_conformities")
}

func (d *PostgresDataset) PlanProgress(ctx context.Context, asl, uoc string) ([]model.PlanProgress, error) {
	b := eqFold(psql().Select(progressColumns...).From("avanzamento"), "asl", asl)
	b = eqFold(b, "uoc", uoc).OrderBy("piano_code")
	return selectInto[model.PlanProgress](ctx, d.db, b, "plan_progress")
}
