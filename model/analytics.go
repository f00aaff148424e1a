package model

// AccountTurnover aggregates outgoing transfer volume for one source account
// over a reporting window, one row per currency. Only completed transfers
// count; admissions that failed or were compensated never moved money.
type AccountTurnover struct {
	AccountRef         string `json:"account_ref"`
	Currency           string `json:"currency"`
	OperationsCount    int64  `json:"operations_count"`
	TurnoverMinorUnits int64  `json:"turnover_minor_units"`
}
