package notification

import "context"

// Permission mirrors the desktop notification permission states
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// DesktopNotification is what gets raised natively for a new notification
type DesktopNotification struct {
	Title              string
	Body               string
	Icon               string
	Tag                string
	RequireInteraction bool
	Data               map[string]interface{}
}

// PermissionBridge abstracts the host's native notification facility
type PermissionBridge interface {
	Supported() bool
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(n DesktopNotification) error
}

// NoopBridge is a host without native notifications
type NoopBridge struct{}

func (NoopBridge) Supported() bool        { return false }
func (NoopBridge) Permission() Permission { return PermissionDenied }

func (NoopBridge) RequestPermission(context.Context) (Permission, error) {
	return PermissionDenied, nil
}

func (NoopBridge) Show(DesktopNotification) error { return nil }
