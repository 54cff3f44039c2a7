package cache

import "github.com/chirpsocial/chirp/internal/state"

// LoadSnapshot reads the full cached dataset for store hydration at startup.
func (db *DB) LoadSnapshot() (state.HydrateEvent, error) {
	var evt state.HydrateEvent

	chats, err := db.ListChats()
	if err != nil {
		return evt, err
	}
	evt.Chats = chats

	evt.Messages = make(map[string][]state.Message, len(chats))
	for _, c := range chats {
		msgs, err := db.ListMessages(c.ID)
		if err != nil {
			return evt, err
		}
		if len(msgs) > 0 {
			evt.Messages[c.ID] = msgs
		}
	}

	ns, err := db.ListNotifications()
	if err != nil {
		return evt, err
	}
	evt.Notifications = ns
	return evt, nil
}
