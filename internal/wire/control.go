package wire

import "encoding/json"

// Outbound control frame types. All fire-and-forget; the server sends no ack.
const (
	controlJoinChat  = "JOIN_CHAT"
	controlLeaveChat = "LEAVE_CHAT"
	controlTyping    = "TYPING"
	controlSubscribe = "SUBSCRIBE"
	controlPing      = "PING"
)

type controlFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func encodeControl(typ string, data any) []byte {
	out, err := json.Marshal(controlFrame{Type: typ, Data: data})
	if err != nil {
		// Control payloads are plain maps of strings; marshal cannot fail.
		return nil
	}
	return out
}

// JoinChat encodes a room-join control frame.
func JoinChat(chatID string) []byte {
	return encodeControl(controlJoinChat, map[string]string{"chatId": chatID})
}

// LeaveChat encodes a room-leave control frame.
func LeaveChat(chatID string) []byte {
	return encodeControl(controlLeaveChat, map[string]string{"chatId": chatID})
}

// Typing encodes a typing on/off indicator for a chat.
func Typing(chatID string, on bool) []byte {
	return encodeControl(controlTyping, map[string]any{"chatId": chatID, "isTyping": on})
}

// SubscribeChannel encodes a logical channel subscription frame.
func SubscribeChannel(channel string) []byte {
	return encodeControl(controlSubscribe, map[string]string{"channel": channel})
}

// Ping encodes a heartbeat frame.
func Ping() []byte {
	return encodeControl(controlPing, nil)
}
