package ws

import "sort"

// presence maps an online user to the connection that announced it.
// A second connection from the same user overwrites the entry; the
// hub's mutex guards it.
type presence struct {
	byUser map[string]string
}

func newPresence() *presence {
	return &presence{byUser: make(map[string]string)}
}

func (p *presence) connect(userID, connID string) {
	p.byUser[userID] = connID
}

// disconnect removes the entry only when it still belongs to connID,
// and reports whether it did.
func (p *presence) disconnect(userID, connID string) bool {
	if current, ok := p.byUser[userID]; !ok || current != connID {
		return false
	}
	delete(p.byUser, userID)
	return true
}

func (p *presence) online() []string {
	users := make([]string, 0, len(p.byUser))
	for id := range p.byUser {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

func (p *presence) count() int {
	return len(p.byUser)
}
