package services

import (
	"time"

	"github.com/tibiamarket/tracker/internal/models"
)

// FieldProbe locates one numeric market field: a reference image that is
// template-matched on screen, and the rectangle holding the number, given as
// an offset from the top-left corner of the matched reference.
type FieldProbe struct {
	Anchor string `json:"anchor"`
	DX     int    `json:"dx"`
	DY     int    `json:"dy"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Region returns the field rectangle for a matched anchor
func (p FieldProbe) Region(anchor models.ScreenRegion) models.ScreenRegion {
	return anchor.Offset(p.DX, p.DY, p.Width, p.Height)
}

// SessionLayout names the reference images the session navigates by.
// Names are resolved to files by the ScreenMatcher.
type SessionLayout struct {
	Update        string `json:"update"`
	Play          string `json:"play"`
	EmailField    string `json:"email_field"`
	PasswordField string `json:"password_field"`
	Character     string `json:"character"`
	InGame        string `json:"in_game"`

	DepotTile     string `json:"depot_tile"`
	DepotOpened   string `json:"depot_opened"`
	MarketIcon    string `json:"market_icon"`
	DetailsButton string `json:"details_button"`
	OffersButton  string `json:"offers_button"`
	SearchField   string `json:"search_field"`
	OfferRow      string `json:"offer_row"`
	ExitConfirm   string `json:"exit_confirm"`

	// FirstResult is the top search suggestion relative to the search field
	FirstResult FieldProbe `json:"first_result"`

	// Offers tab
	SellOffer FieldProbe `json:"sell_offer"`
	BuyOffer  FieldProbe `json:"buy_offer"`

	// Details tab
	HighestSell FieldProbe `json:"highest_sell"`
	LowestBuy   FieldProbe `json:"lowest_buy"`
	Sold        FieldProbe `json:"sold"`
	Bought      FieldProbe `json:"bought"`
}

// DefaultSessionLayout matches the reference images shipped in images/
func DefaultSessionLayout() SessionLayout {
	return SessionLayout{
		Update:        "update",
		Play:          "play",
		EmailField:    "email_field",
		PasswordField: "password_field",
		Character:     "character",
		InGame:        "equipment",
		DepotTile:     "depot_tile",
		DepotOpened:   "depot_chest",
		MarketIcon:    "market_icon",
		DetailsButton: "details_button",
		OffersButton:  "offers_button",
		SearchField:   "search_field",
		OfferRow:      "offer_row",
		ExitConfirm:   "exit_confirm",

		FirstResult: FieldProbe{Anchor: "search_field", DX: 0, DY: -180, Width: 160, Height: 14},

		SellOffer: FieldProbe{Anchor: "sell_offers_label", DX: 136, DY: 18, Width: 88, Height: 12},
		BuyOffer:  FieldProbe{Anchor: "buy_offers_label", DX: 136, DY: 18, Width: 88, Height: 12},

		HighestSell: FieldProbe{Anchor: "sell_statistics_label", DX: 110, DY: 46, Width: 90, Height: 12},
		LowestBuy:   FieldProbe{Anchor: "buy_statistics_label", DX: 110, DY: 60, Width: 90, Height: 12},
		Sold:        FieldProbe{Anchor: "sell_statistics_label", DX: 110, DY: 4, Width: 90, Height: 12},
		Bought:      FieldProbe{Anchor: "buy_statistics_label", DX: 110, DY: 4, Width: 90, Height: 12},
	}
}

// SessionTiming holds the waits the session uses while driving the client
type SessionTiming struct {
	LaunchSettle time.Duration // after starting the process
	ActionDelay  time.Duration // after clicks and key presses
	ShortWait    time.Duration // affordances that should already be on screen
	LoginWait    time.Duration // login screen, character list, world entry
	UpdateWait   time.Duration // client patching
}

// DefaultSessionTiming returns production timings
func DefaultSessionTiming() SessionTiming {
	return SessionTiming{
		LaunchSettle: 5 * time.Second,
		ActionDelay:  300 * time.Millisecond,
		ShortWait:    5 * time.Second,
		LoginWait:    60 * time.Second,
		UpdateWait:   15 * time.Minute,
	}
}
