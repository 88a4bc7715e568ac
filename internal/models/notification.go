package models

import (
	"fmt"
	"time"
)

// Channel names the delivery medium of a notification.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelPush, ChannelEmail, ChannelSMS:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel: %q", s)
	}
}

type Notification struct {
	ID         int64
	UserID     int64
	DisasterID int64
	Channel    Channel
	Title      string
	Body       string
	IsSent     bool
	CreatedAt  time.Time
	SentAt     *time.Time
}

type RegionSubscription struct {
	ID       int64
	UserID   int64
	RegionID int64
}

type DisasterTypeSubscription struct {
	ID           int64
	UserID       int64
	DisasterType string
}

// User holds the contact points used to reach a subscriber.
type User struct {
	ID          int64
	Email       string
	Phone       string
	DeviceToken string
	UpdatedAt   time.Time
}

// Target returns the address for the given channel, or "" when the user
// has not registered one.
func (u *User) Target(c Channel) string {
	switch c {
	case ChannelPush:
		return u.DeviceToken
	case ChannelEmail:
		return u.Email
	case ChannelSMS:
		return u.Phone
	default:
		return ""
	}
}
