package ws

import (
	json "github.com/goccy/go-json"

	"hyperbot/internal/models"
)

type subscription struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type subscribeMessage struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type pingMessage struct {
	Method string `json:"method"`
}

type Message struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type UserFillsData struct {
	IsSnapshot bool          `json:"isSnapshot"`
	User       string        `json:"user"`
	Fills      []models.Fill `json:"fills"`
}

const (
	channelUserFills    = "userFills"
	channelPong         = "pong"
	channelSubscription = "subscriptionResponse"
	channelError        = "error"
)
