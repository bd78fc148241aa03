package paradex

import "encoding/json"

// Notification is a JSON-RPC message from Paradex. Book data arrives with
// method "subscription".
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      *int64          `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// SubscriptionParams carries the channel name and its data
type SubscriptionParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// OrderBookData is an order_book channel message. update_type "s" is a full
// snapshot carried in inserts; anything else is incremental.
type OrderBookData struct {
	SeqNo       int64   `json:"seq_no"`
	Market      string  `json:"market"`
	LastUpdated int64   `json:"last_updated_at"`
	UpdateType  string  `json:"update_type"`
	Inserts     []Level `json:"inserts"`
	Updates     []Level `json:"updates"`
	Deletes     []Level `json:"deletes"`
}

// Level is a side-tagged price level
type Level struct {
	Side  string `json:"side"` // BUY or SELL
	Price string `json:"price"`
	Size  string `json:"size"`
}

// SubscribeRequest is the JSON-RPC subscribe call
type SubscribeRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  SubscribeParams `json:"params"`
	ID      int64           `json:"id"`
}

// SubscribeParams names the channel to subscribe
type SubscribeParams struct {
	Channel string `json:"channel"`
}
