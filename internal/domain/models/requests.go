package models

// Requests for the summary HTTP endpoints.

type SummaryRequest struct {
	TopN  int    `query:"top_n" json:"top_n" default:"10" validate:"gte=0,lte=1000"`
	Order string `query:"order" json:"order" default:"confidence" validate:"oneof=confidence up down"`
}

type TickerSummaryRequest struct {
	Ticker string `param:"ticker" json:"ticker" validate:"required,max=16"`
}
