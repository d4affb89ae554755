package models

import (
	"fmt"
	"sort"
	"strings"
)

const chatIDDelimiter = "-"

// DirectChatID returns the id of the two-party chat between a and b.
// Both participants get the same id regardless of argument order.
func DirectChatID(a, b string) (string, error) {
	for _, id := range []string{a, b} {
		if id == "" {
			return "", fmt.Errorf("%w: empty participant id", ErrProtocol)
		}
		if strings.Contains(id, chatIDDelimiter) {
			return "", fmt.Errorf("%w: %q", ErrAmbiguousParticipant, id)
		}
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, chatIDDelimiter), nil
}

// ParticipantsOf splits a direct chat id back into its two participants.
func ParticipantsOf(chatID string) ([2]string, bool) {
	parts := strings.Split(chatID, chatIDDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return [2]string{}, false
	}
	return [2]string{parts[0], parts[1]}, true
}

// IsParticipant reports whether userID is one of the two members of chatID.
func IsParticipant(userID, chatID string) bool {
	p, ok := ParticipantsOf(chatID)
	if !ok {
		return false
	}
	return p[0] == userID || p[1] == userID
}

// Peer returns the other participant of chatID.
func Peer(userID, chatID string) (string, bool) {
	p, ok := ParticipantsOf(chatID)
	if !ok {
		return "", false
	}
	switch userID {
	case p[0]:
		return p[1], true
	case p[1]:
		return p[0], true
	}
	return "", false
}

// PersonalRoom is the room every connection of userID joins on connect.
func PersonalRoom(userID string) string {
	return "user:" + userID
}
