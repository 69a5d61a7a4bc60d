package domain

import "time"

// Channel is a delivery channel a preference can be expressed for.
type Channel string

const (
	ChannelInApp Channel = "inApp"
	ChannelEmail Channel = "email"
)

// PreferenceStatus is the value of a global or scoped preference.
type PreferenceStatus string

const (
	StatusMuted      PreferenceStatus = "muted"
	StatusSubscribed PreferenceStatus = "subscribed"
)

// ScopeKind is the kind of reference a scoped preference narrows to.
type ScopeKind string

const (
	ScopePost    ScopeKind = "post"
	ScopeComment ScopeKind = "comment"
	ScopeSource  ScopeKind = "source"
	ScopeUser    ScopeKind = "user"
)

// Scope is the narrower context a preference override applies to.
type Scope struct {
	Kind        ScopeKind
	ReferenceID string
}

// Preference is a scoped override keyed by (user, type, scope kind, reference).
type Preference struct {
	UserID           string           `gorm:"primaryKey;type:text"`
	NotificationType NotificationType `gorm:"primaryKey;type:text"`
	ScopeKind        ScopeKind        `gorm:"column:type;primaryKey;type:text"`
	ReferenceID      string           `gorm:"primaryKey;type:text"`
	Status           PreferenceStatus `gorm:"type:text;not null"`
	CreatedAt        time.Time
}

func (Preference) TableName() string { return "notification_preference" }

// ChannelSettings holds a user's global status per channel for one notification type.
// An empty status means the user never touched it.
type ChannelSettings struct {
	Email PreferenceStatus `json:"email,omitempty"`
	InApp PreferenceStatus `json:"inApp,omitempty"`
}

// Status returns the global status for ch.
func (c ChannelSettings) Status(ch Channel) PreferenceStatus {
	if ch == ChannelEmail {
		return c.Email
	}
	return c.InApp
}

// NotificationFlags is a user's global notification settings keyed by type.
type NotificationFlags map[NotificationType]ChannelSettings

// Muted reports whether the user globally muted t on ch.
func (f NotificationFlags) Muted(t NotificationType, ch Channel) bool {
	s, ok := f[t]
	if !ok {
		return false
	}
	return s.Status(ch) == StatusMuted
}
