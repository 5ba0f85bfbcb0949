package chat

import (
	"encoding/json"
	"time"
)

// MessageType identifies a websocket message.
type MessageType string

const (
	// Client → Server
	MessageTypeJoin MessageType = "join"
	MessageTypeSay  MessageType = "say"

	// Server → Client
	MessageTypeJoined MessageType = "joined"
	MessageTypeReply  MessageType = "reply"
	MessageTypeReport MessageType = "report"
	MessageTypeError  MessageType = "error"
)

// Message is the envelope for every websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// JoinData binds a connection to a player and, unless Scope is empty, to a
// group scope. An empty scope is a private chat.
type JoinData struct {
	Scope string `json:"scope,omitempty"`
	Key   string `json:"key"`
	Name  string `json:"name"`
}

// SayData is a line of chat text.
type SayData struct {
	Text string `json:"text"`
}

// JoinedData confirms a join.
type JoinedData struct {
	Scope    string `json:"scope,omitempty"`
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
	Window   string `json:"window"`
}

// ReplyData answers one SayData.
type ReplyData struct {
	Text string `json:"text"`
}

// ReportData carries a settlement report to everyone in the scope.
type ReportData struct {
	Scope   string `json:"scope"`
	RoundID string `json:"roundId"`
	Number  int    `json:"number"`
	Color   string `json:"color"`
	Text    string `json:"text"`
}

// ErrorData reports a protocol error.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
