package model

type SessionStatus string

const (
	SessionStatusUnpaired     SessionStatus = "unpaired"
	SessionStatusPairing      SessionStatus = "pairing"
	SessionStatusReady        SessionStatus = "ready"
	SessionStatusDisconnected SessionStatus = "disconnected"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusUnpaired, SessionStatusPairing, SessionStatusReady, SessionStatusDisconnected:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationStatusPending, NotificationStatusSent, NotificationStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s NotificationStatus) Terminal() bool {
	return s == NotificationStatusSent
}
