package domain

import (
	"encoding/base64"
	"strconv"
	"time"
)

type DeliveryStatus string

const (
	MessageSending   DeliveryStatus = "sending"
	MessageSent      DeliveryStatus = "sent"
	MessageDelivered DeliveryStatus = "delivered"
	MessageRead      DeliveryStatus = "read"
)

// Message is one entry of a room's append-only log. Clients may supply
// the whole thing ready-made; ID is advisory and not guaranteed unique.
// TargetName routes private messages by display name, not connection id.
type Message struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"userId"`
	SenderName string         `json:"userName"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	Encrypted  bool           `json:"encrypted"`
	Status     DeliveryStatus `json:"status"`
	IsPrivate  bool           `json:"isPrivate,omitempty"`
	TargetName string         `json:"targetUserId,omitempty"`
}

// NewMessage synthesizes a message server-side for clients that send
// plain text without a prepared payload.
func NewMessage(senderID, senderName, text string) Message {
	now := time.Now()
	return Message{
		ID:         strconv.FormatInt(now.UnixMilli(), 10),
		SenderID:   senderID,
		SenderName: senderName,
		Content:    EncodeContent(text),
		Timestamp:  now,
		Encrypted:  true,
		Status:     MessageSent,
	}
}

// EncodeContent is a reversible text encoding, not a security mechanism.
func EncodeContent(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

func DecodeContent(content string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
