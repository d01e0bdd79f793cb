package models

import "strings"

// SnapshotRow is one row of the full-scan snapshot as served by the query API
type SnapshotRow struct {
	Name         string  `csv:"Name" json:"Name"`
	SellPrice    int     `csv:"SellPrice" json:"SellPrice"`
	BuyPrice     int     `csv:"BuyPrice" json:"BuyPrice"`
	AvgSellPrice int     `csv:"AvgSellPrice" json:"AvgSellPrice"`
	AvgBuyPrice  int     `csv:"AvgBuyPrice" json:"AvgBuyPrice"`
	Sold         int     `csv:"Sold" json:"Sold"`
	Bought       int     `csv:"Bought" json:"Bought"`
	Profit       int     `csv:"Profit" json:"Profit"`
	RelProfit    float64 `csv:"RelProfit" json:"RelProfit"`
	PotProfit    int     `csv:"PotProfit" json:"PotProfit"`
	ApproxOffers int     `csv:"ApproxOffers" json:"ApproxOffers"`
}

// Traded is the number of units that changed hands over the trailing period
func (r SnapshotRow) Traded() int {
	return r.Sold + r.Bought
}

// SortValue returns the value of the named column for ordering. Unknown
// columns sort as equal.
func (r SnapshotRow) SortValue(column string) (float64, string, bool) {
	switch strings.ToLower(column) {
	case "name":
		return 0, r.Name, true
	case "sellprice":
		return float64(r.SellPrice), "", true
	case "buyprice":
		return float64(r.BuyPrice), "", true
	case "avgsellprice":
		return float64(r.AvgSellPrice), "", true
	case "avgbuyprice":
		return float64(r.AvgBuyPrice), "", true
	case "sold":
		return float64(r.Sold), "", true
	case "bought":
		return float64(r.Bought), "", true
	case "profit":
		return float64(r.Profit), "", true
	case "relprofit":
		return r.RelProfit, "", true
	case "potprofit":
		return float64(r.PotProfit), "", true
	case "traded":
		return float64(r.Traded()), "", true
	case "approxoffers":
		return float64(r.ApproxOffers), "", true
	default:
		return 0, "", false
	}
}
