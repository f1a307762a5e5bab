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
	"github.com/hyperengineering/stockroom/internal/validation"
)

// ProductInput is the payload of a new product. Dates accept 2006-01-02,
// RFC 3339 and 02/01/2006. GroupID skips classification when set.
type ProductInput struct {
	Name        string `json:"name"`
	GroupID     string `json:"group_id,omitempty"`
	Lot         string `json:"lot,omitempty"`
	Quantity    int    `json:"quantity"`
	Unit        string `json:"unit,omitempty"`
	ExpiryDate  string `json:"expiry_date"`
	EntryDate   string `json:"entry_date,omitempty"`
	MinQuantity int    `json:"min_quantity,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// ProductPatch is a partial product update; nil fields are left unchanged.
type ProductPatch struct {
	Name        *string `json:"name,omitempty"`
	GroupID     *string `json:"group_id,omitempty"`
	Lot         *string `json:"lot,omitempty"`
	Quantity    *int    `json:"quantity,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	ExpiryDate  *string `json:"expiry_date,omitempty"`
	EntryDate   *string `json:"entry_date,omitempty"`
	MinQuantity *int    `json:"min_quantity,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// ExitInput describes stock leaving the inventory.
type ExitInput struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
	ExitType string `json:"exit_type"`
}

// Notifier derives notifications from a product's state inside the
// product's transaction and returns the changes to mirror.
type Notifier interface {
	Evaluate(ctx context.Context, tx *store.Tx, p types.Product, s types.Settings) ([]Change, error)
	Clear(ctx context.Context, tx *store.Tx, productID string) ([]Change, error)
}

// ProductService manages products and their stock movements.
type ProductService struct {
	base
	classifier Classifier
	notifier   Notifier
}

// NewProductService creates a product service.
func NewProductService(d Deps, classifier Classifier, notifier Notifier) *ProductService {
	if classifier == nil {
		classifier = KeywordClassifier
	}
	return &ProductService{base: newBase(d), classifier: classifier, notifier: notifier}
}

// Add stores a product. A product with the same group, normalized name and
// expiry date absorbs the quantity instead of creating a duplicate.
func (s *ProductService) Add(ctx context.Context, in ProductInput) (*types.Product, error) {
	defer s.lock()()

	c := &validation.Collector{}
	name := strings.TrimSpace(in.Name)
	c.Add(validation.ValidateRequired("name", name))
	c.Add(validation.ValidateText("name", name, maxNameLength))
	c.Add(validation.ValidatePositiveInt("quantity", in.Quantity))
	c.Add(validation.ValidateNonNegativeInt("min_quantity", in.MinQuantity))
	c.Add(validation.ValidateText("lot", in.Lot, maxShortLength))
	c.Add(validation.ValidateText("unit", in.Unit, maxShortLength))
	c.Add(validation.ValidateText("notes", in.Notes, maxNotesLength))
	expiry := validation.ParseDate(c, "expiry_date", in.ExpiryDate)
	entry := validation.ParseOptionalDate(c, "entry_date", in.EntryDate)
	if err := c.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	if entry.IsZero() {
		entry = types.NewDate(now)
	}

	var result types.Product
	var changes []Change

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		changes = nil

		group, err := s.resolveGroup(ctx, tx, name, in.GroupID, &changes)
		if err != nil {
			return err
		}

		existing, err := findDuplicate(ctx, tx, group.ID, name, expiry)
		if err != nil {
			return err
		}

		op := stocksync.OperationAdd
		if existing != nil {
			result = *existing
			result.Quantity += in.Quantity
			result.LastUpdateDate = now
			op = stocksync.OperationUpdate
		} else {
			result = types.Product{
				ID:             s.NewID(),
				Name:           name,
				GroupID:        group.ID,
				Lot:            in.Lot,
				Quantity:       in.Quantity,
				Unit:           in.Unit,
				ExpiryDate:     expiry,
				EntryDate:      entry,
				MinQuantity:    in.MinQuantity,
				Notes:          in.Notes,
				LastUpdateDate: now,
			}
		}

		if err := tx.UpsertProduct(ctx, result); err != nil {
			return err
		}
		changes = append(changes, upsertChange(op, result))

		notes, err := s.evaluate(ctx, tx, result)
		if err != nil {
			return err
		}
		changes = append(changes, notes...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, s.finish(ctx, changes)
}

// resolveGroup returns the explicit group when groupID is set, else the
// classified one. A derived group is created and its change recorded.
func (s *ProductService) resolveGroup(ctx context.Context, tx *store.Tx, name, groupID string, changes *[]Change) (types.Group, error) {
	if groupID != "" {
		g, err := tx.GetGroup(ctx, groupID)
		if errors.Is(err, store.ErrNotFound) {
			return types.Group{}, validation.New("group_id", "does not exist")
		}
		if err != nil {
			return types.Group{}, err
		}
		return *g, nil
	}

	groups, err := tx.ListGroups(ctx)
	if err != nil {
		return types.Group{}, err
	}

	cl := s.classifier.Classify(name, groups)
	if !cl.Derived {
		return cl.Group, nil
	}

	g := cl.Group
	g.ID = s.NewID()
	g.LastUpdateDate = s.now()
	if g.Keywords == nil {
		g.Keywords = []string{}
	}
	if err := tx.UpsertGroup(ctx, g); err != nil {
		return types.Group{}, err
	}
	*changes = append(*changes, upsertChange(stocksync.OperationAdd, g))
	return g, nil
}

func findDuplicate(ctx context.Context, tx *store.Tx, groupID, name string, expiry types.Date) (*types.Product, error) {
	candidates, err := tx.ListProductsByGroupAndExpiry(ctx, groupID, expiry)
	if err != nil {
		return nil, err
	}
	norm := Normalize(name)
	for _, p := range candidates {
		if Normalize(p.Name) == norm {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *ProductService) evaluate(ctx context.Context, tx *store.Tx, p types.Product) ([]Change, error) {
	if s.notifier == nil {
		return nil, nil
	}
	settings, err := tx.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return s.notifier.Evaluate(ctx, tx, p, settings)
}

// Update applies a partial update.
func (s *ProductService) Update(ctx context.Context, id string, patch ProductPatch) (*types.Product, error) {
	defer s.lock()()

	c := &validation.Collector{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
		c.Add(validation.ValidateRequired("name", name))
		c.Add(validation.ValidateText("name", name, maxNameLength))
	}
	if patch.Quantity != nil {
		c.Add(validation.ValidateNonNegativeInt("quantity", *patch.Quantity))
	}
	if patch.MinQuantity != nil {
		c.Add(validation.ValidateNonNegativeInt("min_quantity", *patch.MinQuantity))
	}
	if patch.Lot != nil {
		c.Add(validation.ValidateText("lot", *patch.Lot, maxShortLength))
	}
	if patch.Unit != nil {
		c.Add(validation.ValidateText("unit", *patch.Unit, maxShortLength))
	}
	if patch.Notes != nil {
		c.Add(validation.ValidateText("notes", *patch.Notes, maxNotesLength))
	}
	var expiry, entry types.Date
	if patch.ExpiryDate != nil {
		expiry = validation.ParseDate(c, "expiry_date", *patch.ExpiryDate)
	}
	if patch.EntryDate != nil {
		entry = validation.ParseDate(c, "entry_date", *patch.EntryDate)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	var result types.Product
	var changes []Change

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		changes = nil

		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return notFound(types.KindProducts, id, err)
		}

		if patch.GroupID != nil && *patch.GroupID != p.GroupID {
			_, err := tx.GetGroup(ctx, *patch.GroupID)
			if errors.Is(err, store.ErrNotFound) {
				return validation.New("group_id", "does not exist")
			}
			if err != nil {
				return err
			}
			p.GroupID = *patch.GroupID
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Lot != nil {
			p.Lot = *patch.Lot
		}
		if patch.Quantity != nil {
			p.Quantity = *patch.Quantity
		}
		if patch.Unit != nil {
			p.Unit = *patch.Unit
		}
		if patch.ExpiryDate != nil {
			p.ExpiryDate = expiry
		}
		if patch.EntryDate != nil {
			p.EntryDate = entry
		}
		if patch.MinQuantity != nil {
			p.MinQuantity = *patch.MinQuantity
		}
		if patch.Notes != nil {
			p.Notes = *patch.Notes
		}
		p.LastUpdateDate = now

		if err := tx.UpsertProduct(ctx, *p); err != nil {
			return err
		}
		result = *p
		changes = append(changes, upsertChange(stocksync.OperationUpdate, result))

		notes, err := s.evaluate(ctx, tx, result)
		if err != nil {
			return err
		}
		changes = append(changes, notes...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, s.finish(ctx, changes)
}

// RegisterExit removes quantity from a product's stock and records the exit
// in history. Weekly-use exits also count toward the weekly-usage slot of
// the UTC weekday, the same clock that stamps the history entry. Nothing
// changes when the stock is insufficient.
func (s *ProductService) RegisterExit(ctx context.Context, id string, in ExitInput) (*types.Product, error) {
	defer s.lock()()

	c := &validation.Collector{}
	c.Add(validation.ValidatePositiveInt("quantity", in.Quantity))
	c.Add(validation.ValidateRequired("exit_type", in.ExitType))
	c.Add(validation.ValidateText("exit_type", in.ExitType, maxShortLength))
	c.Add(validation.ValidateText("reason", in.Reason, maxNotesLength))
	if err := c.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	var result types.Product
	var changes []Change

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		changes = nil

		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return notFound(types.KindProducts, id, err)
		}
		if in.Quantity > p.Quantity {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientQuantity, in.Quantity, p.Quantity)
		}

		p.Quantity -= in.Quantity
		if in.ExitType == types.ExitWeeklyUse {
			p.WeeklyUsage[now.Weekday()] += in.Quantity
		}
		p.LastUpdateDate = now
		if err := tx.UpsertProduct(ctx, *p); err != nil {
			return err
		}
		result = *p

		entry := types.HistoryEntry{
			ID:          s.NewID(),
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    in.Quantity,
			Reason:      in.Reason,
			ExitType:    in.ExitType,
			CreatedAt:   now,
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return err
		}

		changes = append(changes,
			upsertChange(stocksync.OperationUpdate, result),
			upsertChange(stocksync.OperationAdd, entry),
		)

		notes, err := s.evaluate(ctx, tx, result)
		if err != nil {
			return err
		}
		changes = append(changes, notes...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, s.finish(ctx, changes)
}

// Delete removes a product and its notifications.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	defer s.lock()()

	var changes []Change

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		changes = nil

		if _, err := tx.GetProduct(ctx, id); err != nil {
			return notFound(types.KindProducts, id, err)
		}
		if s.notifier != nil {
			cleared, err := s.notifier.Clear(ctx, tx, id)
			if err != nil {
				return err
			}
			changes = append(changes, cleared...)
		}
		if err := tx.DeleteProduct(ctx, id); err != nil {
			return notFound(types.KindProducts, id, err)
		}
		changes = append(changes, deleteChange(types.KindProducts, id))
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.finish(ctx, changes); err != nil {
		return err
	}
	return s.verifyDeleted(ctx, types.KindProducts, id)
}

// LowStock returns cached products at or below threshold. A threshold <= 0
// applies each product's effective threshold from settings.
func (s *ProductService) LowStock(threshold int) []types.Product {
	snap := s.Cache.Load()
	if threshold <= 0 {
		return snap.LowStock
	}
	return cache.LowStock(snap.Products, threshold)
}

// ExpiringWithin returns cached products expiring between today and days
// from today. Already expired products are excluded.
func (s *ProductService) ExpiringWithin(days int) []types.Product {
	return cache.ExpiringWithin(s.Cache.Load().Products, days, s.Now())
}
