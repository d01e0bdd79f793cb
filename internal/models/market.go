package models

// MarketTab is the market sub-panel currently visible. Both panels occupy the
// same screen area, so reads must know which one is showing.
type MarketTab int

const (
	TabOffers MarketTab = iota
	TabDetails
)

func (t MarketTab) String() string {
	switch t {
	case TabOffers:
		return "offers"
	case TabDetails:
		return "details"
	default:
		return "unknown"
	}
}

// SessionState tracks where a market session is in its lifecycle
type SessionState int

const (
	StateNotStarted SessionState = iota
	StateLaunching
	StateUpdating
	StateLogin
	StateInGameNoMarket
	StateMarketOpen
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLaunching:
		return "launching"
	case StateUpdating:
		return "updating"
	case StateLogin:
		return "login"
	case StateInGameNoMarket:
		return "in_game"
	case StateMarketOpen:
		return "market_open"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Credentials used to log into the game client
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
