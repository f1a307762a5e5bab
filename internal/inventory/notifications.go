package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/stockroom/internal/cache"
	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
)

// NotificationService keeps the derived product notifications current and
// lets collaborators acknowledge or dismiss them.
type NotificationService struct {
	base
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService creates a notification service.
func NewNotificationService(d Deps) *NotificationService {
	return &NotificationService{base: newBase(d)}
}

// Evaluate upserts or clears the low-stock and expiry notifications of p.
// Notifications whose message is unchanged are left alone.
func (s *NotificationService) Evaluate(ctx context.Context, tx *store.Tx, p types.Product, settings types.Settings) ([]Change, error) {
	var changes []Change
	for _, kind := range []string{types.NotificationLowStock, types.NotificationExpiry} {
		c, err := s.sync(ctx, tx, kind, p.ID, s.message(kind, p, settings))
		if err != nil {
			return nil, err
		}
		if c != nil {
			changes = append(changes, *c)
		}
	}
	return changes, nil
}

func (s *NotificationService) message(kind string, p types.Product, settings types.Settings) string {
	switch kind {
	case types.NotificationLowStock:
		if !cache.IsLowStock(p, settings) {
			return ""
		}
		qty := strings.TrimSpace(fmt.Sprintf("%d %s", p.Quantity, p.Unit))
		return fmt.Sprintf("%s is low on stock: %s left", p.Name, qty)
	case types.NotificationExpiry:
		if p.ExpiryDate.IsZero() {
			return ""
		}
		label := p.Name
		if p.Lot != "" {
			label += " (lot " + p.Lot + ")"
		}
		days := p.ExpiryDate.DaysUntil(s.Now())
		switch {
		case days < 0:
			return fmt.Sprintf("%s expired on %s", label, p.ExpiryDate)
		case days == 0:
			return label + " expires today"
		case days <= settings.ExpiryWarningDays:
			return fmt.Sprintf("%s expires in %d days", label, days)
		}
	}
	return ""
}

// sync makes the stored notification match message; an empty message
// removes it.
func (s *NotificationService) sync(ctx context.Context, tx *store.Tx, kind, productID, message string) (*Change, error) {
	id := types.NotificationID(kind, productID)
	existing, err := tx.GetNotification(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if message == "" {
		if existing == nil {
			return nil, nil
		}
		if err := tx.DeleteNotification(ctx, id); err != nil {
			return nil, err
		}
		c := deleteChange(types.KindNotifications, id)
		return &c, nil
	}

	if existing != nil && existing.Message == message {
		return nil, nil
	}

	now := s.now()
	n := types.Notification{
		ID:             id,
		Kind:           kind,
		ProductID:      productID,
		Message:        message,
		CreatedAt:      now,
		LastUpdateDate: now,
	}
	op := stocksync.OperationAdd
	if existing != nil {
		n.CreatedAt = existing.CreatedAt
		op = stocksync.OperationUpdate
	}
	if err := tx.UpsertNotification(ctx, n); err != nil {
		return nil, err
	}
	c := upsertChange(op, n)
	return &c, nil
}

// Clear removes every notification of a product.
func (s *NotificationService) Clear(ctx context.Context, tx *store.Tx, productID string) ([]Change, error) {
	existing, err := tx.ListNotificationsForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(existing))
	for _, n := range existing {
		if err := tx.DeleteNotification(ctx, n.ID); err != nil {
			return nil, err
		}
		changes = append(changes, deleteChange(types.KindNotifications, n.ID))
	}
	return changes, nil
}

// EvaluateAll re-evaluates every product, e.g. after thresholds changed or
// the calendar moved expiry dates into the warning window.
func (s *NotificationService) EvaluateAll(ctx context.Context) error {
	defer s.lock()()

	var changes []Change
	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		changes = nil
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		products, err := tx.ListProducts(ctx)
		if err != nil {
			return err
		}
		for _, p := range products {
			c, err := s.Evaluate(ctx, tx, p, settings)
			if err != nil {
				return err
			}
			changes = append(changes, c...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.finish(ctx, changes)
}

// MarkRead flags a notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string) (*types.Notification, error) {
	defer s.lock()()

	var result types.Notification
	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		n, err := tx.GetNotification(ctx, id)
		if err != nil {
			return notFound(types.KindNotifications, id, err)
		}
		n.Read = true
		n.LastUpdateDate = s.now()
		if err := tx.UpsertNotification(ctx, *n); err != nil {
			return err
		}
		result = *n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, s.finish(ctx, []Change{upsertChange(stocksync.OperationUpdate, result)})
}

// Delete dismisses a notification.
func (s *NotificationService) Delete(ctx context.Context, id string) error {
	defer s.lock()()

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		return notFound(types.KindNotifications, id, tx.DeleteNotification(ctx, id))
	})
	if err != nil {
		return err
	}
	if err := s.finish(ctx, []Change{deleteChange(types.KindNotifications, id)}); err != nil {
		return err
	}
	return s.verifyDeleted(ctx, types.KindNotifications, id)
}
