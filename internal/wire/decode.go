package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ParseError reports a frame that could not be normalized. The router logs
// and drops these; they never reach a reducer.
type ParseError struct {
	Frame  Kind
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("frame %s: %s", e.Frame, e.Reason)
}

// Decode parses one raw inbound frame into its canonical Frame. The backend
// emits several generations of payload shapes (alternate field names, string
// vs numeric ids, second vs millisecond timestamps); this is the single place
// where those variants are folded into the canonical schema.
func Decode(data []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ParseError{Frame: "", Reason: "malformed JSON: " + err.Error()}
	}
	if env.Type == "" {
		// The notification queue delivers bare Notification objects with
		// no envelope. Accept them if they normalize.
		if n, err := decodeNotification(data); err == nil {
			return NotificationFrame{Notification: n}, nil
		}
		return nil, &ParseError{Frame: "", Reason: "missing type discriminator"}
	}
	frame, err := DecodeEnvelope(env)
	if err != nil {
		// A bare notification's own `type` field is the notification kind
		// (NEW_FOLLOWER, ...), not an envelope discriminator, so it lands
		// here as an unknown frame. Try the whole payload as a
		// notification before giving up.
		var perr *ParseError
		if errors.As(err, &perr) && perr.Reason == "unknown frame type" {
			if n, nerr := decodeNotification(data); nerr == nil {
				return NotificationFrame{Notification: n}, nil
			}
		}
		return nil, err
	}
	return frame, nil
}

// DecodeEnvelope normalizes an already-split envelope.
func DecodeEnvelope(env Envelope) (Frame, error) {
	kind := Kind(env.Type)
	switch kind {
	case KindNewMessage:
		m, err := decodeMessage(kind, env.Data)
		if err != nil {
			return nil, err
		}
		return NewMessageFrame{Message: m}, nil
	case KindMessageUpdated:
		m, err := decodeMessage(kind, env.Data)
		if err != nil {
			return nil, err
		}
		return MessageUpdatedFrame{Message: m}, nil
	case KindMessageDeleted:
		var raw rawMessage
		if err := unmarshalData(kind, env.Data, &raw); err != nil {
			return nil, err
		}
		id := firstString(raw.ID, raw.MessageID)
		chatID := firstString(raw.ChatID, raw.ConversationID)
		if id == "" || chatID == "" {
			return nil, &ParseError{Frame: kind, Reason: "missing id or chatId"}
		}
		return MessageDeletedFrame{ChatID: chatID, MessageID: id}, nil
	case KindTypingIndicator:
		return decodeTyping(env.Data)
	case KindChatUpdated:
		c, err := decodeChat(kind, env.Data)
		if err != nil {
			return nil, err
		}
		return ChatUpdatedFrame{Chat: c}, nil
	case KindNewChat:
		c, err := decodeChat(kind, env.Data)
		if err != nil {
			return nil, err
		}
		return NewChatFrame{Chat: c}, nil
	case KindChatDeleted:
		var raw rawChat
		if err := unmarshalData(kind, env.Data, &raw); err != nil {
			return nil, err
		}
		id := firstString(raw.ID, raw.ChatID, raw.ConversationID)
		if id == "" {
			return nil, &ParseError{Frame: kind, Reason: "missing chat id"}
		}
		return ChatDeletedFrame{ChatID: id}, nil
	case KindParticipantLeft:
		var raw struct {
			ChatID         any      `json:"chatId"`
			ConversationID any      `json:"conversationId"`
			UserID         any      `json:"userId"`
			User           *rawUser `json:"user"`
		}
		if err := unmarshalData(kind, env.Data, &raw); err != nil {
			return nil, err
		}
		chatID := firstString(raw.ChatID, raw.ConversationID)
		userID := firstString(raw.UserID)
		if userID == "" && raw.User != nil {
			userID = firstString(raw.User.ID, raw.User.UserID)
		}
		if chatID == "" || userID == "" {
			return nil, &ParseError{Frame: kind, Reason: "missing chatId or userId"}
		}
		return ParticipantLeftFrame{ChatID: chatID, UserID: userID}, nil
	case KindReadStatusUpdated:
		return decodeReadStatus(env.Data)
	case KindChatReadUpdated:
		return decodeChatRead(env.Data)
	case KindUserStatusChanged:
		return decodeUserStatus(env.Data)
	case KindNotification:
		n, err := decodeNotification(env.Data)
		if err != nil {
			return nil, err
		}
		return NotificationFrame{Notification: n}, nil
	case KindCountsUpdated:
		return decodeCounts(env.Data)
	default:
		return nil, &ParseError{Frame: kind, Reason: "unknown frame type"}
	}
}

// DecodeMessage normalizes a standalone message object, e.g. the body of a
// REST send response.
func DecodeMessage(data []byte) (Message, error) {
	return decodeMessage(KindNewMessage, data)
}

// DecodeChat normalizes a standalone chat object from a REST list.
func DecodeChat(data []byte) (Chat, error) {
	return decodeChat(KindNewChat, data)
}

// DecodeNotification normalizes a standalone notification object.
func DecodeNotification(data []byte) (Notification, error) {
	return decodeNotification(data)
}

// Raw payload shapes. Fields of type `any` may arrive as JSON strings or
// numbers depending on backend version.

type rawUser struct {
	ID       any    `json:"id"`
	UserID   any    `json:"userId"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type rawMedia struct {
	URL      string `json:"url"`
	FileURL  string `json:"fileUrl"`
	MimeType string `json:"mimeType"`
	Type     string `json:"type"`
}

type rawMessage struct {
	ID             any       `json:"id"`
	MessageID      any       `json:"messageId"`
	ClientID       string    `json:"clientId"`
	ChatID         any       `json:"chatId"`
	ConversationID any       `json:"conversationId"`
	SenderID       any       `json:"senderId"`
	AuthorID       any       `json:"authorId"`
	User           *rawUser  `json:"user"`
	Sender         *rawUser  `json:"sender"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	Body           string    `json:"body"`
	Text           string    `json:"text"`
	Media          *rawMedia `json:"media"`
	Attachment     *rawMedia `json:"attachment"`
	CreatedAt      any       `json:"createdAt"`
	Timestamp      any       `json:"timestamp"`
	SentAt         any       `json:"sentAt"`
	IsDelivered    bool      `json:"isDelivered"`
	Delivered      bool      `json:"delivered"`
	IsRead         bool      `json:"isRead"`
	Read           bool      `json:"read"`
	IsPinned       bool      `json:"isPinned"`
	Edited         bool      `json:"edited"`
	IsEdited       bool      `json:"isEdited"`
}

type rawChat struct {
	ID             any    `json:"id"`
	ChatID         any    `json:"chatId"`
	ConversationID any    `json:"conversationId"`
	Name           string `json:"name"`
	Title          string `json:"title"`
	AvatarURL      string `json:"avatarUrl"`
	IsGroup        bool   `json:"isGroup"`
	Group          bool   `json:"group"`
	LastMessageAt  any    `json:"lastMessageAt"`
	UpdatedAt      any    `json:"updatedAt"`
	LastMessage    *struct {
		Content string `json:"content"`
		Body    string `json:"body"`
	} `json:"lastMessage"`
	UnreadCount int `json:"unreadCount"`
}

type rawNotification struct {
	ID        any      `json:"id"`
	Type      string   `json:"type"`
	IsRead    bool     `json:"isRead"`
	Read      bool     `json:"read"`
	IsSeen    bool     `json:"isSeen"`
	Seen      bool     `json:"seen"`
	ActorID   any      `json:"actorId"`
	Actor     *rawUser `json:"actor"`
	User      *rawUser `json:"user"`
	ActionURL string   `json:"actionUrl"`
	Link      string   `json:"link"`
	CreatedAt any      `json:"createdAt"`
	Timestamp any      `json:"timestamp"`
}

func decodeMessage(kind Kind, data []byte) (Message, error) {
	var raw rawMessage
	if err := unmarshalData(kind, data, &raw); err != nil {
		return Message{}, err
	}

	m := Message{
		ID:         firstString(raw.ID, raw.MessageID),
		ClientID:   raw.ClientID,
		ChatID:     firstString(raw.ChatID, raw.ConversationID),
		SenderID:   firstString(raw.SenderID, raw.AuthorID),
		SenderName: raw.SenderName,
		Content:    firstNonEmpty(raw.Content, raw.Body, raw.Text),
		CreatedAt:  firstMillis(raw.CreatedAt, raw.Timestamp, raw.SentAt),
		Delivered:  raw.IsDelivered || raw.Delivered,
		Read:       raw.IsRead || raw.Read,
		Pinned:     raw.IsPinned,
		Edited:     raw.Edited || raw.IsEdited,
	}
	if m.SenderID == "" {
		if u := firstUser(raw.User, raw.Sender); u != nil {
			m.SenderID = firstString(u.ID, u.UserID)
			if m.SenderName == "" {
				m.SenderName = firstNonEmpty(u.Username, u.Name)
			}
		}
	}
	if media := firstMedia(raw.Media, raw.Attachment); media != nil {
		m.Media = &Media{
			URL:      firstNonEmpty(media.URL, media.FileURL),
			MimeType: firstNonEmpty(media.MimeType, media.Type),
		}
	}

	if m.ID == "" {
		return Message{}, &ParseError{Frame: kind, Reason: "missing message id"}
	}
	if m.ChatID == "" {
		return Message{}, &ParseError{Frame: kind, Reason: "missing chatId"}
	}
	if m.SenderID == "" {
		return Message{}, &ParseError{Frame: kind, Reason: "missing senderId"}
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	return m, nil
}

func decodeChat(kind Kind, data []byte) (Chat, error) {
	var raw rawChat
	if err := unmarshalData(kind, data, &raw); err != nil {
		return Chat{}, err
	}
	c := Chat{
		ID:            firstString(raw.ID, raw.ChatID, raw.ConversationID),
		Name:          firstNonEmpty(raw.Name, raw.Title),
		AvatarURL:     raw.AvatarURL,
		IsGroup:       raw.IsGroup || raw.Group,
		LastMessageAt: firstMillis(raw.LastMessageAt, raw.UpdatedAt),
		Unread:        raw.UnreadCount,
	}
	if raw.LastMessage != nil {
		c.LastPreview = firstNonEmpty(raw.LastMessage.Content, raw.LastMessage.Body)
	}
	if c.ID == "" {
		return Chat{}, &ParseError{Frame: kind, Reason: "missing chat id"}
	}
	return c, nil
}

func decodeTyping(data []byte) (Frame, error) {
	kind := KindTypingIndicator
	var raw struct {
		ChatID         any      `json:"chatId"`
		ConversationID any      `json:"conversationId"`
		UserIDs        []any    `json:"userIds"`
		TypingUsers    []any    `json:"typingUsers"`
		UserID         any      `json:"userId"`
		User           *rawUser `json:"user"`
		IsTyping       *bool    `json:"isTyping"`
	}
	if err := unmarshalData(kind, data, &raw); err != nil {
		return nil, err
	}
	chatID := firstString(raw.ChatID, raw.ConversationID)
	if chatID == "" {
		return nil, &ParseError{Frame: kind, Reason: "missing chatId"}
	}

	// Two variants: a wholesale user-id list, or a single user flipping
	// their typing flag. Both normalize to a replacement set; the single
	// user form with isTyping=false yields the empty set for that user.
	update := TypingUpdate{ChatID: chatID}
	ids := raw.UserIDs
	if len(ids) == 0 {
		ids = raw.TypingUsers
	}
	if len(ids) > 0 {
		for _, v := range ids {
			if s := firstString(v); s != "" {
				update.UserIDs = append(update.UserIDs, s)
			}
		}
		return TypingFrame{Update: update}, nil
	}

	userID := firstString(raw.UserID)
	if userID == "" && raw.User != nil {
		userID = firstString(raw.User.ID, raw.User.UserID)
	}
	if userID == "" {
		return nil, &ParseError{Frame: kind, Reason: "missing userIds or userId"}
	}
	if raw.IsTyping == nil || *raw.IsTyping {
		update.UserIDs = []string{userID}
	}
	return TypingFrame{Update: update}, nil
}

func decodeReadStatus(data []byte) (Frame, error) {
	kind := KindReadStatusUpdated
	var raw struct {
		ChatID         any   `json:"chatId"`
		ConversationID any   `json:"conversationId"`
		MessageIDs     []any `json:"messageIds"`
		MessageID      any   `json:"messageId"`
		ReaderID       any   `json:"readerId"`
		UserID         any   `json:"userId"`
	}
	if err := unmarshalData(kind, data, &raw); err != nil {
		return nil, err
	}
	update := ReadUpdate{
		ChatID:   firstString(raw.ChatID, raw.ConversationID),
		ReaderID: firstString(raw.ReaderID, raw.UserID),
	}
	for _, v := range raw.MessageIDs {
		if s := firstString(v); s != "" {
			update.MessageIDs = append(update.MessageIDs, s)
		}
	}
	if len(update.MessageIDs) == 0 {
		if s := firstString(raw.MessageID); s != "" {
			update.MessageIDs = []string{s}
		}
	}
	if update.ChatID == "" || len(update.MessageIDs) == 0 {
		return nil, &ParseError{Frame: kind, Reason: "missing chatId or messageIds"}
	}
	return ReadStatusFrame{Update: update}, nil
}

func decodeChatRead(data []byte) (Frame, error) {
	kind := KindChatReadUpdated
	var raw struct {
		ChatID         any `json:"chatId"`
		ConversationID any `json:"conversationId"`
		ReaderID       any `json:"readerId"`
		UserID         any `json:"userId"`
		ReadAt         any `json:"readAt"`
	}
	if err := unmarshalData(kind, data, &raw); err != nil {
		return nil, err
	}
	update := ChatReadUpdate{
		ChatID:   firstString(raw.ChatID, raw.ConversationID),
		ReaderID: firstString(raw.ReaderID, raw.UserID),
		ReadAt:   firstMillis(raw.ReadAt),
	}
	if update.ChatID == "" {
		return nil, &ParseError{Frame: kind, Reason: "missing chatId"}
	}
	return ChatReadFrame{Update: update}, nil
}

func decodeUserStatus(data []byte) (Frame, error) {
	kind := KindUserStatusChanged
	var raw struct {
		UserID   any    `json:"userId"`
		ID       any    `json:"id"`
		Online   *bool  `json:"online"`
		IsOnline *bool  `json:"isOnline"`
		Status   string `json:"status"`
		LastSeen any    `json:"lastSeenAt"`
	}
	if err := unmarshalData(kind, data, &raw); err != nil {
		return nil, err
	}
	update := PresenceUpdate{
		UserID:     firstString(raw.UserID, raw.ID),
		LastSeenAt: firstMillis(raw.LastSeen),
	}
	if update.UserID == "" {
		return nil, &ParseError{Frame: kind, Reason: "missing userId"}
	}
	switch {
	case raw.Online != nil:
		update.Online = *raw.Online
	case raw.IsOnline != nil:
		update.Online = *raw.IsOnline
	default:
		update.Online = raw.Status == "online" || raw.Status == "ONLINE"
	}
	return UserStatusFrame{Update: update}, nil
}

func decodeCounts(data []byte) (Frame, error) {
	kind := KindCountsUpdated
	var raw struct {
		UnreadNotifications *int           `json:"unreadNotifications"`
		Unread              *int           `json:"unread"`
		UnseenNotifications *int           `json:"unseenNotifications"`
		Unseen              *int           `json:"unseen"`
		ChatUnread          map[string]int `json:"chatUnread"`
		Conversations       map[string]int `json:"conversations"`
	}
	if err := unmarshalData(kind, data, &raw); err != nil {
		return nil, err
	}
	if raw.UnreadNotifications == nil && raw.Unread == nil {
		return nil, &ParseError{Frame: kind, Reason: "missing unread counter"}
	}
	update := CountsUpdate{ChatUnread: raw.ChatUnread}
	if update.ChatUnread == nil {
		update.ChatUnread = raw.Conversations
	}
	if raw.UnreadNotifications != nil {
		update.UnreadNotifications = *raw.UnreadNotifications
	} else {
		update.UnreadNotifications = *raw.Unread
	}
	switch {
	case raw.UnseenNotifications != nil:
		update.UnseenNotifications = *raw.UnseenNotifications
	case raw.Unseen != nil:
		update.UnseenNotifications = *raw.Unseen
	}
	return CountsFrame{Update: update}, nil
}

func decodeNotification(data []byte) (Notification, error) {
	kind := KindNotification
	var raw rawNotification
	if err := unmarshalData(kind, data, &raw); err != nil {
		return Notification{}, err
	}
	n := Notification{
		ID:        firstString(raw.ID),
		Type:      raw.Type,
		Read:      raw.IsRead || raw.Read,
		Seen:      raw.IsSeen || raw.Seen,
		ActorID:   firstString(raw.ActorID),
		ActionURL: firstNonEmpty(raw.ActionURL, raw.Link),
		CreatedAt: firstMillis(raw.CreatedAt, raw.Timestamp),
	}
	if u := firstUser(raw.Actor, raw.User); u != nil {
		if n.ActorID == "" {
			n.ActorID = firstString(u.ID, u.UserID)
		}
		n.ActorName = firstNonEmpty(u.Username, u.Name)
	}
	if n.ID == "" {
		return Notification{}, &ParseError{Frame: kind, Reason: "missing notification id"}
	}
	if n.Type == "" {
		return Notification{}, &ParseError{Frame: kind, Reason: "missing notification type"}
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().UnixMilli()
	}
	return n, nil
}

func unmarshalData(kind Kind, data []byte, v any) error {
	if len(data) == 0 {
		return &ParseError{Frame: kind, Reason: "empty payload"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ParseError{Frame: kind, Reason: "malformed payload: " + err.Error()}
	}
	return nil
}

// firstString normalizes the first non-empty id-ish value: JSON strings
// pass through, numbers are formatted without an exponent.
func firstString(vals ...any) string {
	for _, v := range vals {
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatInt(int64(t), 10)
		case int64:
			return strconv.FormatInt(t, 10)
		case int:
			return strconv.Itoa(t)
		case json.Number:
			return t.String()
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstUser(users ...*rawUser) *rawUser {
	for _, u := range users {
		if u != nil {
			return u
		}
	}
	return nil
}

func firstMedia(medias ...*rawMedia) *rawMedia {
	for _, m := range medias {
		if m != nil {
			return m
		}
	}
	return nil
}

// firstMillis normalizes a timestamp that may arrive as RFC3339, unix
// seconds, or unix milliseconds. Anything below the year-2001 millisecond
// range is treated as seconds.
func firstMillis(vals ...any) int64 {
	for _, v := range vals {
		switch t := v.(type) {
		case string:
			if t == "" {
				continue
			}
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed.UnixMilli()
			}
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return secondsOrMillis(n)
			}
		case float64:
			if t != 0 {
				return secondsOrMillis(int64(t))
			}
		case int64:
			if t != 0 {
				return secondsOrMillis(t)
			}
		}
	}
	return 0
}

func secondsOrMillis(n int64) int64 {
	if n < 1_000_000_000_000 {
		return n * 1000
	}
	return n
}
