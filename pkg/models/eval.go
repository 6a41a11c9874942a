package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/tb0hdan/polyprompt-mcp/pkg/gateway"
	"gorm.io/gorm"
)

// Eval is one model's result within an execution pass of a run. Evals are
// written once and never updated.
type Eval struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	RunID     string    `gorm:"type:varchar(36);index;not null" json:"run_id"`
	BatchID   string    `gorm:"type:varchar(36);index;not null" json:"batch_id"`
	Position  int       `json:"position"`
	Model     string    `gorm:"type:varchar(255);not null" json:"model"`
	Provider  string    `gorm:"type:varchar(64)" json:"provider"`
	LatencyMs int64     `json:"latency_ms"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	CostUSD   float64   `gorm:"column:cost_usd" json:"cost_usd"`
	Output    *string   `gorm:"type:text" json:"output"`
	Error     *string   `gorm:"type:text" json:"error"`
}

// BeforeCreate assigns an ID.
func (e *Eval) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// NewEvalBatch converts ordered results into an eval batch for runID. All
// rows share batchID and createdAt; Position keeps the input order.
func NewEvalBatch(runID, batchID string, createdAt time.Time, results []gateway.Result) []Eval {
	evals := make([]Eval, 0, len(results))
	for i, res := range results {
		evals = append(evals, Eval{
			CreatedAt: createdAt,
			RunID:     runID,
			BatchID:   batchID,
			Position:  i,
			Model:     res.Model,
			Provider:  res.Provider,
			LatencyMs: res.LatencyMs,
			TokensIn:  res.TokensIn,
			TokensOut: res.TokensOut,
			CostUSD:   res.CostUSD,
			Output:    res.Output,
			Error:     res.Error,
		})
	}
	return evals
}

// Result converts the eval back into the caller-facing result shape.
func (e Eval) Result() gateway.Result {
	return gateway.Result{
		Model:     e.Model,
		Provider:  e.Provider,
		Output:    e.Output,
		TokensIn:  e.TokensIn,
		TokensOut: e.TokensOut,
		LatencyMs: e.LatencyMs,
		CostUSD:   e.CostUSD,
		Error:     e.Error,
	}
}
