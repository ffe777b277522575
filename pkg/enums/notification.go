package enums

import (
	"fmt"
	"strings"
)

// NotificationType tells clients which screen a notification links to.
type NotificationType string

const (
	NotificationTypeOrderStatus  NotificationType = "order_status"
	NotificationTypePayoutUpdate NotificationType = "payout_update"
	NotificationTypeSystem       NotificationType = "system"
)

var notificationTitles = map[NotificationType]string{
	NotificationTypeOrderStatus:  "Order update",
	NotificationTypePayoutUpdate: "Payout update",
	NotificationTypeSystem:       "Announcement",
}

func (n NotificationType) IsValid() bool {
	_, ok := notificationTitles[n]
	return ok
}

// Title is the default headline stored with a notification of this type.
func (n NotificationType) Title() string {
	return notificationTitles[n]
}

func ParseNotificationType(value string) (NotificationType, error) {
	candidate := NotificationType(strings.ToLower(strings.TrimSpace(value)))
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid notification type %q", value)
	}
	return candidate, nil
}
