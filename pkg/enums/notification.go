package enums

import "slices"

// NotificationType is the event type handed to the notification sink.
type NotificationType string

const (
	NotificationOrderCreated          NotificationType = "order_created"
	NotificationOrderStatusChanged    NotificationType = "order_status_changed"
	NotificationBackorderPending      NotificationType = "backorder_pending"
	NotificationBackorderResolved     NotificationType = "backorder_resolved"
	NotificationPackingSessionExpired NotificationType = "packing_session_expired"
	NotificationLowStock              NotificationType = "low_stock"
	NotificationRouteOptimized        NotificationType = "route_optimized"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderCreated,
	NotificationOrderStatusChanged,
	NotificationBackorderPending,
	NotificationBackorderResolved,
	NotificationPackingSessionExpired,
	NotificationLowStock,
	NotificationRouteOptimized,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse(value, validNotificationTypes, "notification type")
}
