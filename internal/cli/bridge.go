package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"edumarket-service/internal/client/notification"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// DesktopToast is the terminal rendition of a desktop notification
type DesktopToast struct {
	Title  string
	Body   string
	Sticky bool
}

// Confirmer asks the user a yes/no question
type Confirmer func(ctx context.Context, title, description string) (bool, error)

// HuhConfirm prompts with a huh confirm field
func HuhConfirm(ctx context.Context, title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Allow").
				Negative("Block").
				Value(&ok),
		),
	).RunWithContext(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// TerminalBridge shows notifications as toasts in the terminal
type TerminalBridge struct {
	out         io.Writer
	interactive bool
	confirm     Confirmer

	mu   sync.Mutex
	perm notification.Permission
}

var _ notification.PermissionBridge = (*TerminalBridge)(nil)

// NewTerminalBridge starts in the default permission state. enabled=false
// starts denied, as if the user had blocked notifications.
func NewTerminalBridge(out io.Writer, interactive, enabled bool, confirm Confirmer) *TerminalBridge {
	perm := notification.PermissionDefault
	if !enabled {
		perm = notification.PermissionDenied
	}
	if confirm == nil {
		confirm = HuhConfirm
	}
	return &TerminalBridge{out: out, interactive: interactive, confirm: confirm, perm: perm}
}

// IsTerminal reports whether both stdin and stdout are terminals
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

func (b *TerminalBridge) Supported() bool {
	return b.interactive
}

func (b *TerminalBridge) Permission() notification.Permission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perm
}

func (b *TerminalBridge) RequestPermission(ctx context.Context) (notification.Permission, error) {
	ok, err := b.confirm(ctx, "Show notification toasts?", "New notifications will pop up in this terminal.")
	if err != nil {
		return notification.PermissionDefault, fmt.Errorf("permission prompt: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.perm = notification.PermissionGranted
	} else {
		b.perm = notification.PermissionDenied
	}
	return b.perm, nil
}

func (b *TerminalBridge) Show(n notification.DesktopNotification) error {
	toast := RenderToast(DesktopToast{
		Title:  n.Title,
		Body:   n.Body,
		Sticky: n.RequireInteraction,
	})
	_, err := fmt.Fprintln(b.out, toast)
	return err
}
