package domain

import (
	"encoding/json"
	"fmt"
)

// Topics exchanged over the message transport.
const (
	TopicNotificationRequested = "api.v1.notification-requested"
	TopicNotificationCreated   = "api.v1.notification-created"
	TopicUserConnected         = "api.v1.user-connected"
	TopicUserDisconnected      = "api.v1.user-disconnected"
)

// Generated is one producer output: a notification type and its context.
type Generated struct {
	Type    NotificationType
	Context Context
}

// NotificationRequested is the wire shape of a producer output.
type NotificationRequested struct {
	Type    NotificationType `json:"type" validate:"required,notification_type"`
	Context json.RawMessage  `json:"context" validate:"required"`
}

// NotificationCreated is emitted once per assembled notification.
type NotificationCreated struct {
	Notification Notification `json:"notification"`
}

// PresenceChanged is emitted by the real-time gateway on connect and disconnect.
type PresenceChanged struct {
	UserID string `json:"userId" validate:"required"`
}

// RealtimeChannel is the per-recipient logical channel new notifications are published on.
func RealtimeChannel(userID string) string {
	return fmt.Sprintf("events.notifications.%s.new", userID)
}
