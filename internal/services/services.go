// Package services provides the host-application collaborators the store
// engine consumes: localization lookup, feedback publication, capability
// checks and the minimum-visible-delay helper.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// Compile-time checks.
var (
	_ domain.Localizer       = (*Catalog)(nil)
	_ domain.Authorizer      = (CapabilitySet)(nil)
	_ domain.FeedbackSurface = (*LogSurface)(nil)
	_ domain.DelayFunc       = Delay
)

// Catalog is an in-memory localization catalog. Unknown keys resolve to
// themselves so a missing translation never hides the message entirely.
type Catalog struct {
	messages map[string]string
}

// NewCatalog wraps a message map.
func NewCatalog(messages map[string]string) *Catalog {
	return &Catalog{messages: messages}
}

// Get resolves a message code, falling back to the code itself.
func (c *Catalog) Get(key string) string {
	if c != nil {
		if msg, ok := c.messages[key]; ok {
			return msg
		}
	}
	return key
}

// DefaultMessages holds the built-in English strings for the engine's
// message codes.
var DefaultMessages = map[string]string{
	"consumers.nameRequired":     "Please enter a name.",
	"consumers.limitExceeded":    "This consumer has reached the spending limit.",
	"products.titleRequired":     "Please enter a title.",
	"products.titleTaken":        "A product with this title already exists.",
	"products.priceNotPositive":  "The price must be greater than zero.",
	"occasions.titleRequired":    "Please enter a title.",
	"occasions.closed":           "This occasion is closed.",
	"occasions.hasOrders":        "This occasion already has orders.",
	"orders.locked":              "This order can no longer be changed.",
	"orders.notEditable":         "This order cannot be edited.",
	"receipt.noOccasion":         "Select an occasion first.",
	"receipt.noConsumer":         "Select a consumer first.",
	"receipt.empty":              "The receipt has no items.",
	"receipt.reopenOccasion":     "Reopen occasion",
	"settings.notAllowed":        "You are not allowed to manage settings.",
	"catalog.createNotAllowed":   "You are not allowed to create items.",
	"catalog.deleteNotAllowed":   "You are not allowed to delete items.",
	"catalog.loadFailed":         "Loading failed, please try again.",
	"catalog.notFound":           "The item could not be found.",
	"catalog.notSubmittable":     "There is nothing to save yet.",
}

// CapabilitySet answers UserCan from a fixed set of granted capabilities.
type CapabilitySet map[string]bool

// UserCan reports whether the capability was granted.
func (s CapabilitySet) UserCan(capability string) bool {
	return s[capability]
}

// Capabilities used by the domain modules.
const (
	CapManageCatalog = "manageCatalog"
	CapDeleteItems   = "deleteItems"
	CapSettings      = "settings"
)

// LogSurface publishes feedback items through slog, resolving their message
// codes first. It stands in for whatever surface the host renders feedback
// on, and honors the OnAfterError contract: the callback runs after the item
// has been published.
type LogSurface struct {
	logger *slog.Logger
	l10n   domain.Localizer
}

// NewLogSurface creates a surface writing to the given logger.
func NewLogSurface(logger *slog.Logger, l10n domain.Localizer) *LogSurface {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSurface{logger: logger, l10n: l10n}
}

// Add publishes one item.
func (s *LogSurface) Add(item domain.FeedbackItem) {
	msg := item.Message
	if s.l10n != nil {
		msg = s.l10n.Get(item.Message)
	}
	if item.IsError {
		s.logger.Error("feedback", "message", msg, "field", item.Field)
	} else {
		s.logger.Info("feedback", "message", msg, "field", item.Field)
	}
	if item.OnAfterError != nil {
		item.OnAfterError()
	}
}

// Delay waits at least d, returning early only when the context is done.
// Load flows use it to keep a loading indicator visible long enough to not
// flicker.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
