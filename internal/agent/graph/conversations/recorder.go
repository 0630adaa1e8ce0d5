package conversations

import (
	"context"
	"strings"
	"time"

	"github.com/gisa-chat/server/internal/agent/model"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// Recorder writes finalized turns to the turn repository. Recording is
// best-effort: a failing store never fails the turn.
type Recorder struct {
	repo model.TurnRepository
}

func NewRecorder(repo model.TurnRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends the turn and replaces the sender's pending details with
// the ones this turn produced (none clears them).
func (r *Recorder) Record(ctx context.Context, st *model.TurnState) {
	if r == nil || r.repo == nil || st == nil {
		return
	}
	sender := strings.TrimSpace(st.Metadata.Sender)
	if sender == "" {
		return
	}

	rec := model.TurnRecord{
		TurnID:    st.TurnID,
		Message:   st.Message,
		Intent:    st.Intent,
		Slots:     st.Slots,
		Response:  st.FinalResponse,
		Error:     st.Error,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.repo.AppendTurn(ctx, sender, rec); err != nil {
		logx.Warn().Err(err).Str("turn_id", st.TurnID).Msg("turn not recorded")
	}

	details := ""
	if st.HasMoreDetails && st.ToolOutput != nil {
		details = st.ToolOutput.Details
	}
	if err := r.repo.SavePendingDetails(ctx, sender, details); err != nil {
		logx.Warn().Err(err).Str("turn_id", st.TurnID).Msg("pending details not saved")
	}
}

// History returns the last limit turns of sender, oldest first.
func (r *Recorder) History(ctx context.Context, sender string, limit int) ([]model.TurnRecord, error) {
	if r == nil || r.repo == nil {
		return []model.TurnRecord{}, nil
	}
	return r.repo.RecentTurns(ctx, sender, limit)
}

// Forget drops everything stored for sender.
func (r *Recorder) Forget(ctx context.Context, sender string) error {
	if r == nil || r.repo == nil {
		return nil
	}
	return r.repo.ClearHistory(ctx, sender)
}
