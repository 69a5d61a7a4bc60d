package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// User is the subset of the platform's user row the pipeline reads.
type User struct {
	ID                  string                                `json:"id" gorm:"primaryKey;type:text"`
	Name                string                                `json:"name" gorm:"type:text"`
	Username            string                                `json:"username" gorm:"type:text"`
	Email               string                                `json:"email" gorm:"type:text"`
	Image               string                                `json:"image" gorm:"type:text"`
	NotificationEmail   bool                                  `json:"notificationEmail" gorm:"not null;default:true"`
	FollowNotifications bool                                  `json:"followNotifications" gorm:"not null;default:true"`
	NotificationFlags   datatypes.JSONType[NotificationFlags] `json:"notificationFlags" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt           time.Time                             `json:"createdAt"`
}

func (User) TableName() string { return "user" }

// Flags returns the user's global notification settings, never nil.
func (u *User) Flags() NotificationFlags {
	f := u.NotificationFlags.Data()
	if f == nil {
		return NotificationFlags{}
	}
	return f
}

// FirstName returns the first word of the user's display name.
func (u *User) FirstName() string {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return u.Username
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}
