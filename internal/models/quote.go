package models

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Unreadable marks a numeric field that OCR could not read
const Unreadable = -1

// SnapshotHeader is the column order of the full-scan snapshot file
var SnapshotHeader = []string{
	"Name", "SellPrice", "BuyPrice", "AvgSellPrice", "AvgBuyPrice",
	"Sold", "Bought", "Profit", "RelProfit", "PotProfit",
}

// ApproxOffersColumn is appended to SnapshotHeader by the extended schema
const ApproxOffersColumn = "ApproxOffers"

// Header returns the snapshot header for the selected schema
func Header(withApproxOffers bool) []string {
	header := append([]string{}, SnapshotHeader...)
	if withApproxOffers {
		header = append(header, ApproxOffersColumn)
	}
	return header
}

// ReadableInt is the result of reading one number off the screen.
// OK is false when OCR produced something that is not a number.
type ReadableInt struct {
	Value int
	OK    bool
}

// Readable wraps a successfully parsed value
func Readable(v int) ReadableInt {
	return ReadableInt{Value: v, OK: true}
}

// Missing is the unreadable marker
func Missing() ReadableInt {
	return ReadableInt{}
}

// Int returns the value, or Unreadable when the field was not read
func (r ReadableInt) Int() int {
	if !r.OK {
		return Unreadable
	}
	return r.Value
}

// MarketReadings are the raw values read from both market tabs for one item
type MarketReadings struct {
	SellOffer    ReadableInt
	BuyOffer     ReadableInt
	HighestSell  ReadableInt
	LowestBuy    ReadableInt
	Sold         ReadableInt
	Bought       ReadableInt
	ApproxOffers ReadableInt
}

// MarketQuote is one observation of an item's market state
type MarketQuote struct {
	Name             string    `json:"name"`
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
	ObservedAt       time.Time `json:"observed_at"`
}

// NewMarketQuote builds a quote from raw readings, clamping the current offers
// into the bounds observed over the trailing period. Unreadable offers are left
// at Unreadable so consumers can drop them from aggregates.
func NewMarketQuote(name string, r MarketReadings, observedAt time.Time) MarketQuote {
	buy := r.BuyOffer.Int()
	if r.BuyOffer.OK && r.LowestBuy.OK && buy < r.LowestBuy.Value {
		buy = r.LowestBuy.Value
	}

	sell := r.SellOffer.Int()
	sold := r.Sold.Int()
	if r.SellOffer.OK && sold > 0 {
		if r.HighestSell.OK && sell > r.HighestSell.Value {
			sell = r.HighestSell.Value
		}
		if sell < buy {
			sell = buy
		}
	}

	bought := r.Bought.Int()
	profit := sell - buy

	var rel float64
	if buy > 0 {
		rel = math.Round(float64(profit)/float64(buy)*100) / 100
	}

	return MarketQuote{
		Name:             strings.ToLower(strings.TrimSpace(name)),
		SellOffer:        sell,
		BuyOffer:         buy,
		MonthHighestSell: r.HighestSell.Int(),
		MonthLowestBuy:   r.LowestBuy.Int(),
		Sold:             sold,
		Bought:           bought,
		Profit:           profit,
		RelProfit:        rel,
		PotProfit:        profit * min(sold, bought),
		ApproxOffers:     r.ApproxOffers.Int(),
		ObservedAt:       observedAt,
	}
}

// PoisonedQuote is recorded when a query failed outright
func PoisonedQuote(name string, observedAt time.Time) MarketQuote {
	return MarketQuote{
		Name:             strings.ToLower(strings.TrimSpace(name)),
		SellOffer:        Unreadable,
		BuyOffer:         Unreadable,
		MonthHighestSell: Unreadable,
		MonthLowestBuy:   Unreadable,
		Sold:             Unreadable,
		Bought:           Unreadable,
		Profit:           Unreadable,
		RelProfit:        Unreadable,
		PotProfit:        Unreadable,
		ApproxOffers:     Unreadable,
		ObservedAt:       observedAt,
	}
}

// Valid reports whether every field the derived values depend on was read
func (q MarketQuote) Valid() bool {
	return q.SellOffer != Unreadable && q.BuyOffer != Unreadable &&
		q.Sold != Unreadable && q.Bought != Unreadable
}

// UnreadableFields lists the names of fields that carry the sentinel
func (q MarketQuote) UnreadableFields() []string {
	var fields []string
	check := func(name string, v int) {
		if v == Unreadable {
			fields = append(fields, name)
		}
	}
	check("sell_offer", q.SellOffer)
	check("buy_offer", q.BuyOffer)
	check("month_highest_sell", q.MonthHighestSell)
	check("month_lowest_buy", q.MonthLowestBuy)
	check("sold", q.Sold)
	check("bought", q.Bought)
	return fields
}

// CSVRecord renders the quote as a snapshot row
func (q MarketQuote) CSVRecord(withApproxOffers bool) []string {
	record := []string{
		q.Name,
		strconv.Itoa(q.SellOffer),
		strconv.Itoa(q.BuyOffer),
		strconv.Itoa(q.MonthHighestSell),
		strconv.Itoa(q.MonthLowestBuy),
		strconv.Itoa(q.Sold),
		strconv.Itoa(q.Bought),
		strconv.Itoa(q.Profit),
		strconv.FormatFloat(q.RelProfit, 'f', -1, 64),
		strconv.Itoa(q.PotProfit),
	}
	if withApproxOffers {
		record = append(record, strconv.Itoa(q.ApproxOffers))
	}
	return record
}

// HistoryRecord renders the quote as a history row: snapshot fields plus epoch seconds
func (q MarketQuote) HistoryRecord(withApproxOffers bool) []string {
	return append(q.CSVRecord(withApproxOffers), strconv.FormatInt(q.ObservedAt.Unix(), 10))
}
