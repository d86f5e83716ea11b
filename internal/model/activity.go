package model

// ActionType is the normalized classification of a disclosed action.
type ActionType string

const (
	// ActionBuy is a new position.
	ActionBuy ActionType = "Buy"
	// ActionSell is a full exit.
	ActionSell ActionType = "Sell"
	// ActionAdd increases an existing position.
	ActionAdd ActionType = "Add"
	// ActionReduce trims an existing position.
	ActionReduce ActionType = "Reduce"
	// ActionHold is everything else.
	ActionHold ActionType = "Hold"
)

// ActionTypes lists every valid action type.
var ActionTypes = []ActionType{ActionBuy, ActionSell, ActionAdd, ActionReduce, ActionHold}

// Valid reports whether a is one of the five known action types.
func (a ActionType) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionAdd, ActionReduce, ActionHold:
		return true
	default:
		return false
	}
}

// String returns the action type name.
func (a ActionType) String() string {
	return string(a)
}

// Activity is one disclosed trade for a (manager, ticker) pair in a
// fiscal quarter. Activities are append-only facts; a crawl re-derives
// the whole history for a manager.
type Activity struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name"`
	ManagerID   string `json:"manager_id"`

	// Action is the free-form text, e.g. "Add 12.3%".
	Action     string     `json:"action"`
	ActionType ActionType `json:"action_type"`

	// PercentageChange is the percentage embedded in Action, if any.
	PercentageChange float64 `json:"percentage_change"`

	// Shares is the share delta of the trade.
	Shares int64 `json:"shares"`

	// PortfolioPercentage is the resulting weight in the portfolio.
	PortfolioPercentage float64 `json:"portfolio_percentage"`

	// Date is the quarter label "Q# YYYY". It is never empty for an
	// accepted activity.
	Date string `json:"date"`
}

// Quarter returns the quarter label of the activity.
func (a Activity) Quarter() string {
	return a.Date
}
