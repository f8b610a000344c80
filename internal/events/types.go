package events

// Event enumerates high-level topics inside the simulator.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventMarkPrice      Event = "mark_price"
	EventCandleUpdate   Event = "candle_update"
	EventDepthUpdate    Event = "depth_update"
	EventTradeSignal    Event = "trade_signal"
	EventPositionOpened Event = "position.opened"
	EventPositionClosed Event = "position.closed"
	EventNotification   Event = "notification"
	EventAdvisorLog     Event = "advisor_log"
)

// PriceTick is published for every trade or mark price update from the feed.
type PriceTick struct {
	Symbol string
	Price  float64
}

// Notification is a user-facing alert routed to the presentation layer and
// the notifier fan-out.
type Notification struct {
	Type     string // info | success | warning | error
	Category string // signal | trade | system
	Title    string
	Message  string
}

// LogEntry is one line of the advisory activity stream.
type LogEntry struct {
	Time    int64  `json:"time"` // unix ms
	Message string `json:"message"`
}
