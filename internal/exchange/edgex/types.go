package edgex

import "encoding/json"

// Envelope is the common shape of every EdgeX public message
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Time    json.RawMessage `json:"time,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// QuoteContent is the payload of a quote-event
type QuoteContent struct {
	DataType string      `json:"dataType"`
	Channel  string      `json:"channel"`
	Data     []DepthData `json:"data"`
}

// DepthData is one depth message for a contract
type DepthData struct {
	StartVersion string  `json:"startVersion"`
	EndVersion   string  `json:"endVersion"`
	Level        int     `json:"level"`
	ContractID   string  `json:"contractId"`
	ContractName string  `json:"contractName"`
	DepthType    string  `json:"depthType"` // SNAPSHOT or CHANGED
	Bids         []Level `json:"bids"`
	Asks         []Level `json:"asks"`
}

// Level is a price level in EdgeX format
type Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// SubscribeRequest subscribes one channel
type SubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Pong answers a server ping, echoing its time
type Pong struct {
	Type string          `json:"type"`
	Time json.RawMessage `json:"time"`
}
