package domain

import (
	"time"

	"github.com/lib/pq"
)

// Notification is an immutable fact shown to one or more recipients.
// (type, reference_id, reference_type, unique_key) is unique; see postgres.Bootstrap.
type Notification struct {
	ID               string           `json:"id" gorm:"primaryKey;type:text"`
	Type             NotificationType `json:"type" gorm:"type:text;not null"`
	Icon             string           `json:"icon" gorm:"type:text;not null"`
	Title            string           `json:"title" gorm:"type:text;not null"`
	Description      *string          `json:"description,omitempty" gorm:"type:text"`
	TargetURL        string           `json:"targetUrl" gorm:"type:text;not null"`
	Public           bool             `json:"public" gorm:"not null"`
	ReferenceID      *string          `json:"referenceId,omitempty" gorm:"type:text"`
	ReferenceType    *string          `json:"referenceType,omitempty" gorm:"type:text"`
	UniqueKey        string           `json:"uniqueKey" gorm:"type:text;not null;default:'0'"`
	ScopeKind        *ScopeKind       `json:"scopeKind,omitempty" gorm:"type:text"`
	ScopeReferenceID *string          `json:"scopeReferenceId,omitempty" gorm:"type:text"`
	AttachmentIDs    pq.StringArray   `json:"attachments" gorm:"type:text[];not null;default:'{}'"`
	AvatarIDs        pq.StringArray   `json:"avatars" gorm:"type:text[];not null;default:'{}'"`
	CreatedAt        time.Time        `json:"createdAt" gorm:"not null;index"`
}

func (Notification) TableName() string { return "notification" }

// Scope returns the preference scope the notification was assembled under, if any.
func (n *Notification) Scope() *Scope {
	if n.ScopeKind == nil || n.ScopeReferenceID == nil {
		return nil
	}
	return &Scope{Kind: *n.ScopeKind, ReferenceID: *n.ScopeReferenceID}
}

// UserNotification is the per-recipient delivery record of a Notification.
type UserNotification struct {
	NotificationID string     `json:"notificationId" gorm:"primaryKey;type:text"`
	UserID         string     `json:"userId" gorm:"primaryKey;type:text;index"`
	CreatedAt      time.Time  `json:"createdAt" gorm:"not null"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	Public         bool       `json:"public" gorm:"not null"`
	UniqueKey      *string    `json:"uniqueKey,omitempty" gorm:"type:text"`
}

func (UserNotification) TableName() string { return "user_notification" }

// Avatar is a deduplicated display record for the actor of a notification.
type Avatar struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	Kind        string    `json:"type" gorm:"column:type;type:text;not null;uniqueIndex:idx_avatar_reference,priority:1"`
	ReferenceID string    `json:"referenceId" gorm:"type:text;not null;uniqueIndex:idx_avatar_reference,priority:2"`
	Image       string    `json:"image" gorm:"type:text;not null"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	TargetURL   string    `json:"targetUrl" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"-"`
}

func (Avatar) TableName() string { return "notification_avatar" }

// Attachment is a deduplicated display record for the subject of a notification.
type Attachment struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	Kind        string    `json:"type" gorm:"column:type;type:text;not null;uniqueIndex:idx_attachment_reference,priority:1"`
	ReferenceID string    `json:"referenceId" gorm:"type:text;not null;uniqueIndex:idx_attachment_reference,priority:2"`
	Image       string    `json:"image" gorm:"type:text;not null"`
	Title       string    `json:"title" gorm:"type:text;not null"`
	TargetURL   string    `json:"targetUrl" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"-"`
}

func (Attachment) TableName() string { return "notification_attachment" }

// Reference kinds shared by avatars, attachments and notification references.
const (
	ReferenceKindUser        = "user"
	ReferenceKindSource      = "source"
	ReferenceKindPost        = "post"
	ReferenceKindComment     = "comment"
	ReferenceKindOpportunity = "opportunity"
)

// ExpandedNotification is the fully denormalized shape broadcast to live clients.
type ExpandedNotification struct {
	Notification
	Attachments []Attachment `json:"attachments"`
	Avatars     []Avatar     `json:"avatars"`
}

// OrderAvatars returns avatars ordered to match ids. Unknown ids are skipped.
func OrderAvatars(ids []string, avatars []Avatar) []Avatar {
	byID := make(map[string]Avatar, len(avatars))
	for _, a := range avatars {
		byID[a.ID] = a
	}
	out := make([]Avatar, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// OrderAttachments returns attachments ordered to match ids. Unknown ids are skipped.
func OrderAttachments(ids []string, attachments []Attachment) []Attachment {
	byID := make(map[string]Attachment, len(attachments))
	for _, a := range attachments {
		byID[a.ID] = a
	}
	out := make([]Attachment, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
