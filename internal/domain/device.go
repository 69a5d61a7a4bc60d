package domain

import "time"

// Device is a push-capable installation registered as an SNS platform endpoint.
type Device struct {
	DeviceID    string    `json:"id" gorm:"column:id;primaryKey;type:text"`
	UserID      string    `json:"user_id" gorm:"type:text;not null;index"`
	Platform    string    `json:"platform" gorm:"type:text;not null"` // "apns" | "fcm"
	EndpointARN string    `json:"-" gorm:"type:text;not null"`
	Enable      bool      `json:"enable" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"updated"`
}

func (Device) TableName() string { return "device" }
