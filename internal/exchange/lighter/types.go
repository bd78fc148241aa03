package lighter

// OrderBookMessage is an order book frame from Lighter. Each update carries
// both sides of the book.
type OrderBookMessage struct {
	Type      string     `json:"type"`
	Channel   string     `json:"channel"` // order_book:<marketIndex>
	Timestamp int64      `json:"timestamp"`
	OrderBook *OrderBook `json:"order_book"`
}

// OrderBook holds the levels of one market
type OrderBook struct {
	Code int     `json:"code"`
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Level is a price level in Lighter format
type Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// SubscribeRequest subscribes one channel
type SubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}
