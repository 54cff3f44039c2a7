package wire

import (
	"errors"
	"testing"
)

func TestDecodeNewMessageVariants(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"canonical fields", `{"type":"NEW_MESSAGE","data":{"id":"m1","chatId":"c1","senderId":"u2","content":"hi","createdAt":1700000000000}}`},
		{"numeric ids and seconds", `{"type":"NEW_MESSAGE","data":{"id":41,"chatId":7,"senderId":9,"body":"hi","timestamp":1700000000}}`},
		{"nested user and text", `{"type":"NEW_MESSAGE","data":{"messageId":"m1","conversationId":"c1","user":{"id":"u2","username":"ana"},"text":"hi","createdAt":"2023-11-14T22:13:20Z"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Decode([]byte(tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			nm, ok := frame.(NewMessageFrame)
			if !ok {
				t.Fatalf("frame type = %T, want NewMessageFrame", frame)
			}
			m := nm.Message
			if m.ID == "" || m.ChatID == "" || m.SenderID == "" {
				t.Errorf("incomplete normalization: %+v", m)
			}
			if m.Content != "hi" {
				t.Errorf("content = %q, want hi", m.Content)
			}
			if m.CreatedAt != 1700000000000 {
				t.Errorf("createdAt = %d, want 1700000000000", m.CreatedAt)
			}
		})
	}
}

func TestDecodeMissingRequiredField(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"message without id", `{"type":"NEW_MESSAGE","data":{"chatId":"c1","senderId":"u2","content":"hi"}}`},
		{"message without chat", `{"type":"NEW_MESSAGE","data":{"id":"m1","senderId":"u2","content":"hi"}}`},
		{"message without sender", `{"type":"NEW_MESSAGE","data":{"id":"m1","chatId":"c1","content":"hi"}}`},
		{"typing without chat", `{"type":"TYPING_INDICATOR","data":{"userId":"u2"}}`},
		{"deleted without ids", `{"type":"MESSAGE_DELETED","data":{}}`},
		{"no discriminator", `{"data":{"id":"m1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Decode() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SOMETHING_NEW","data":{}}`))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Decode() error = %v, want *ParseError", err)
	}
	if pe.Frame != "SOMETHING_NEW" {
		t.Errorf("frame = %q, want SOMETHING_NEW", pe.Frame)
	}
}

func TestDecodeTypingWholesaleList(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"TYPING_INDICATOR","data":{"chatId":"c1","userIds":["u2","u3"]}}`))
	if err != nil {
		t.Fatal(err)
	}
	tf := frame.(TypingFrame)
	if len(tf.Update.UserIDs) != 2 {
		t.Errorf("got %d typing users, want 2", len(tf.Update.UserIDs))
	}
}

func TestDecodeTypingSingleUserOff(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"TYPING_INDICATOR","data":{"chatId":"c1","userId":"u2","isTyping":false}}`))
	if err != nil {
		t.Fatal(err)
	}
	tf := frame.(TypingFrame)
	if len(tf.Update.UserIDs) != 0 {
		t.Errorf("stopped-typing frame should yield empty set, got %v", tf.Update.UserIDs)
	}
}

func TestDecodeBareNotification(t *testing.T) {
	// The notification queue carries the object directly, no envelope.
	frame, err := Decode([]byte(`{"id":7,"type":"NEW_FOLLOWER","actor":{"id":"u3","username":"bo"},"isSeen":false,"createdAt":1700000000}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	nf, ok := frame.(NotificationFrame)
	if !ok {
		t.Fatalf("frame type = %T, want NotificationFrame", frame)
	}
	n := nf.Notification
	if n.ID != "7" || n.Type != "NEW_FOLLOWER" || n.ActorID != "u3" || n.ActorName != "bo" {
		t.Errorf("normalized notification = %+v", n)
	}
	if n.Seen || n.Read {
		t.Error("fresh notification should be unseen and unread")
	}
}

func TestDecodeCountsVariants(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"COUNTS_UPDATED","data":{"unread":5,"unseen":2,"conversations":{"c1":1}}}`))
	if err != nil {
		t.Fatal(err)
	}
	u := frame.(CountsFrame).Update
	if u.UnreadNotifications != 5 || u.UnseenNotifications != 2 || u.ChatUnread["c1"] != 1 {
		t.Errorf("update = %+v", u)
	}

	// Zero is a legitimate counter value, not a missing field.
	frame, err = Decode([]byte(`{"type":"COUNTS_UPDATED","data":{"unreadNotifications":0,"unseenNotifications":0}}`))
	if err != nil {
		t.Fatal(err)
	}
	u = frame.(CountsFrame).Update
	if u.UnreadNotifications != 0 || u.UnseenNotifications != 0 {
		t.Errorf("update = %+v, want zeroed counters", u)
	}

	if _, err := Decode([]byte(`{"type":"COUNTS_UPDATED","data":{"chatUnread":{}}}`)); err == nil {
		t.Error("expected error for counts payload without an unread counter")
	}
}

func TestDecodeUnknownTypeStillRejected(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SOMETHING_ELSE","data":{}}`))
	if err == nil {
		t.Fatal("expected error for unknown frame type that is not a notification")
	}
}

func TestDecodeEnvelopedNotification(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"NOTIFICATION","data":{"id":"n1","type":"POST_LIKED","isRead":true,"actionUrl":"/p/1"}}`))
	if err != nil {
		t.Fatal(err)
	}
	n := frame.(NotificationFrame).Notification
	if !n.Read || n.Seen {
		t.Errorf("read/seen lifecycles mixed up: %+v", n)
	}
	if n.ActionURL != "/p/1" {
		t.Errorf("actionUrl = %q", n.ActionURL)
	}
}

func TestDecodeChatFrames(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"NEW_CHAT","data":{"id":"c9","title":"trip","isGroup":true,"lastMessage":{"content":"yo"},"lastMessageAt":1700000000000}}`))
	if err != nil {
		t.Fatal(err)
	}
	c := frame.(NewChatFrame).Chat
	if c.ID != "c9" || c.Name != "trip" || !c.IsGroup || c.LastPreview != "yo" {
		t.Errorf("chat = %+v", c)
	}

	frame, err = Decode([]byte(`{"type":"CHAT_DELETED","data":{"chatId":"c9"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if frame.(ChatDeletedFrame).ChatID != "c9" {
		t.Error("chat delete id not normalized")
	}
}

func TestDecodeReadStatusSingleAndBatch(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"READ_STATUS_UPDATED","data":{"chatId":"c1","messageId":"m1","userId":"u2"}}`))
	if err != nil {
		t.Fatal(err)
	}
	u := frame.(ReadStatusFrame).Update
	if len(u.MessageIDs) != 1 || u.ReaderID != "u2" {
		t.Errorf("update = %+v", u)
	}

	frame, err = Decode([]byte(`{"type":"READ_STATUS_UPDATED","data":{"chatId":"c1","messageIds":["m1","m2"],"readerId":"u2"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(frame.(ReadStatusFrame).Update.MessageIDs); got != 2 {
		t.Errorf("got %d message ids, want 2", got)
	}
}

func TestDecodeUserStatusVariants(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"USER_STATUS_CHANGED","data":{"userId":"u2","status":"online"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !frame.(UserStatusFrame).Update.Online {
		t.Error("status=online should normalize to Online=true")
	}

	frame, err = Decode([]byte(`{"type":"USER_STATUS_CHANGED","data":{"id":"u2","isOnline":false,"lastSeenAt":1700000000}}`))
	if err != nil {
		t.Fatal(err)
	}
	u := frame.(UserStatusFrame).Update
	if u.Online || u.LastSeenAt != 1700000000000 {
		t.Errorf("update = %+v", u)
	}
}

func TestSecondsOrMillis(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{1700000000, 1700000000000},
		{1700000000000, 1700000000000},
		{0, 0},
	}
	for _, tt := range tests {
		if got := secondsOrMillis(tt.in); got != tt.want {
			t.Errorf("secondsOrMillis(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
