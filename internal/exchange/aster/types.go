package aster

// DepthUpdate represents a partial depth event from the Aster WebSocket. With
// the depth20 stream every event carries the top 20 levels of both sides.
type DepthUpdate struct {
	EventType       string     `json:"e"`  // Event type
	EventTime       int64      `json:"E"`  // Event time
	TransactionTime int64      `json:"T"`  // Transaction time
	Symbol          string     `json:"s"`  // Symbol
	FirstUpdateID   int64      `json:"U"`  // First update ID in event
	FinalUpdateID   int64      `json:"u"`  // Final update ID in event
	PrevUpdateID    int64      `json:"pu"` // Final update Id in last stream
	Bids            [][]string `json:"b"`  // Top bids
	Asks            [][]string `json:"a"`  // Top asks
}

// SubscribeRequest subscribes a list of stream names
type SubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}
