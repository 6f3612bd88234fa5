package models

// CandlesRequest bounds a candle query.
type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 1h 4h 1d"`
	Limit  int    `query:"limit" json:"limit" default:"10000" validate:"gte=1,lte=50000"`
}

// TradesRequest bounds a closed-trade query.
type TradesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}

// BacktestRequest starts a replay over a historical range.
type BacktestRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from" validate:"required"`
	To     string `query:"to" json:"to" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 1h 4h 1d"`
}

// ReportRequest fetches the latest cached backtest report.
type ReportRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}
