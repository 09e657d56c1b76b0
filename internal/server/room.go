package server

import "slices"

// Room is the set of clients signaling into one room id, keyed by user id.
type Room struct {
	ID      string
	Members map[string]*Client
}

func newRoom(id string) *Room {
	return &Room{ID: id, Members: make(map[string]*Client)}
}

// others returns every member except userID.
func (r *Room) others(userID string) []*Client {
	out := make([]*Client, 0, len(r.Members))
	for id, c := range r.Members {
		if id != userID {
			out = append(out, c)
		}
	}
	return out
}

func (r *Room) userIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
