package hyperliquid

import "encoding/json"

// WsBook represents the WebSocket L2 book message from Hyperliquid. Every
// message carries the whole book.
type WsBook struct {
	Coin   string       `json:"coin"`
	Time   int64        `json:"time"`
	Levels [2][]WsLevel `json:"levels"` // [bids[], asks[]]
}

// WsLevel represents a single price level in Hyperliquid format
type WsLevel struct {
	Px string `json:"px"` // price
	Sz string `json:"sz"` // size
	N  int    `json:"n"`  // number of orders
}

// Subscription is the body of a subscribe request
type Subscription struct {
	Type     string `json:"type"`
	Coin     string `json:"coin"`
	NSigFigs int    `json:"nSigFigs"`
}

// SubscriptionMessage represents the WebSocket subscription message
type SubscriptionMessage struct {
	Method       string       `json:"method"`
	Subscription Subscription `json:"subscription"`
}

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}
