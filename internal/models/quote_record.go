package models

import (
	"time"
)

// QuoteRecord stores one market observation for history queries
type QuoteRecord struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	ScanID           string    `json:"scan_id" gorm:"uniqueIndex:idx_quote_scan_name"`
	Name             string    `json:"name" gorm:"not null;index:idx_quote_name_time;uniqueIndex:idx_quote_scan_name"`
	SellOffer        int       `json:"sell_offer"`
	BuyOffer         int       `json:"buy_offer"`
	MonthHighestSell int       `json:"month_highest_sell"`
	MonthLowestBuy   int       `json:"month_lowest_buy"`
	Sold             int       `json:"sold"`
	Bought           int       `json:"bought"`
	Profit           int       `json:"profit"`
	RelProfit        float64   `json:"rel_profit"`
	PotProfit        int       `json:"pot_profit"`
	ApproxOffers     int       `json:"approx_offers"`
	Valid            bool      `json:"valid"`
	ObservedAt       time.Time `json:"observed_at" gorm:"not null;index:idx_quote_name_time"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewQuoteRecord converts a quote into its stored form
func NewQuoteRecord(scanID string, q MarketQuote) QuoteRecord {
	return QuoteRecord{
		ScanID:           scanID,
		Name:             q.Name,
		SellOffer:        q.SellOffer,
		BuyOffer:         q.BuyOffer,
		MonthHighestSell: q.MonthHighestSell,
		MonthLowestBuy:   q.MonthLowestBuy,
		Sold:             q.Sold,
		Bought:           q.Bought,
		Profit:           q.Profit,
		RelProfit:        q.RelProfit,
		PotProfit:        q.PotProfit,
		ApproxOffers:     q.ApproxOffers,
		Valid:            q.Valid(),
		ObservedAt:       q.ObservedAt,
	}
}

// ItemHistoryResponse is the API response for an item's history
type ItemHistoryResponse struct {
	Name         string        `json:"name"`
	Period       string        `json:"period"` // "week", "month", "year", "all"
	Observations []QuoteRecord `json:"observations"`
}
