// Package webhook receives channel gateway callbacks and turns them into
// normalized inbound messages for the booking pipeline.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Gateway event names that carry no chat content and are acknowledged
// without processing.
const (
	EventMessagesUpsert   = "messages.upsert"
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
)

// InboundMessage is one normalized chat message from the gateway.
type InboundMessage struct {
	RemoteID    string
	Phone       string
	PushName    string
	Text        string
	AudioBase64 string
	FromMe      bool
	Timestamp   time.Time
}

type payload struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type rawMessage struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		AudioMessage struct {
			Base64 string `json:"base64"`
		} `json:"audioMessage"`
	} `json:"message"`
	MessageTimestamp int64 `json:"messageTimestamp"`
}

// Envelope is the parsed webhook body.
type Envelope struct {
	Event    string
	Instance string
	Messages []InboundMessage
}

// Parse decodes a gateway webhook body. The data field arrives either as
// a single message object or as an array of them depending on gateway
// version; both shapes normalize identically.
func Parse(body []byte) (*Envelope, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("webhook: decode envelope: %w", err)
	}
	env := &Envelope{Event: p.Event, Instance: p.Instance}
	if p.Event != EventMessagesUpsert || len(p.Data) == 0 {
		return env, nil
	}

	var raws []rawMessage
	if err := json.Unmarshal(p.Data, &raws); err != nil {
		var single rawMessage
		if err := json.Unmarshal(p.Data, &single); err != nil {
			return nil, fmt.Errorf("webhook: decode message data: %w", err)
		}
		raws = []rawMessage{single}
	}

	for _, raw := range raws {
		msg := normalize(raw)
		if msg.Phone == "" {
			continue
		}
		env.Messages = append(env.Messages, msg)
	}
	return env, nil
}

func normalize(raw rawMessage) InboundMessage {
	text := raw.Message.Conversation
	if text == "" {
		text = raw.Message.ExtendedTextMessage.Text
	}
	msg := InboundMessage{
		RemoteID:    raw.Key.ID,
		Phone:       phoneFromJid(raw.Key.RemoteJid),
		PushName:    strings.TrimSpace(raw.PushName),
		Text:        strings.TrimSpace(text),
		AudioBase64: raw.Message.AudioMessage.Base64,
		FromMe:      raw.Key.FromMe,
	}
	if raw.MessageTimestamp > 0 {
		msg.Timestamp = time.Unix(raw.MessageTimestamp, 0).UTC()
	}
	return msg
}

// phoneFromJid extracts the bare number from a JID like
// "5511999998888@s.whatsapp.net". Group JIDs yield an empty phone.
func phoneFromJid(jid string) string {
	number, domain, found := strings.Cut(jid, "@")
	if !found || strings.Contains(domain, "g.us") {
		return ""
	}
	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}
