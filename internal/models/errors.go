package models

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrAuthentication: bad, missing or expired credential. Never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrProtocol: malformed room or event arguments. Reported to the caller only.
	ErrProtocol = errors.New("protocol error")

	// ErrTransport: network drop. Surfaced as a status transition.
	ErrTransport = errors.New("transport error")

	// ErrCache: local storage failure. Always treated as a cache miss.
	ErrCache = errors.New("cache error")

	// ErrAmbiguousParticipant is returned for user ids that contain the
	// chat id delimiter.
	ErrAmbiguousParticipant = errors.New("participant id contains chat id delimiter")
)
