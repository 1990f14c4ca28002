package domain

// BudgetDaily is a per-user, per-date counter row. Date is formatted
// YYYY-MM-DD in the user's local timezone at rollover time, UTC otherwise.
type BudgetDaily struct {
	UserID            string  `json:"user_id" db:"user_id"`
	Date              string  `json:"date" db:"date"`
	EmbeddingTokensEst int64  `json:"embedding_tokens_est" db:"embedding_tokens_est"`
	JudgeTokensEst     int64  `json:"judge_tokens_est" db:"judge_tokens_est"`
	USDEst             float64 `json:"usd_est" db:"usd_est"`
}

// BudgetFlags holds the soft/hard cutoff flags consulted by the embedding
// worker and decision pipeline (spec.md §3, §4.8).
type BudgetFlags struct {
	EmbeddingDisabled bool
	JudgeDisabled     bool
}

// ReserveKind distinguishes which counter a Budget Governor reservation
// increments.
type ReserveKind string

const (
	ReserveEmbedding ReserveKind = "embedding"
	ReserveJudge     ReserveKind = "judge"
)

// DefaultDailyCapUSD is the fallback daily spend cap applied to a user
// with no explicit override row (spec.md §4.8).
const DefaultDailyCapUSD = 2.00
