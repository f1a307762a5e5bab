package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
	"github.com/hyperengineering/stockroom/internal/validation"
)

// GroupInput is the payload of a new group.
type GroupInput struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
}

// GroupPatch is a partial group update.
type GroupPatch struct {
	Name     *string   `json:"name,omitempty"`
	Keywords *[]string `json:"keywords,omitempty"`
}

// GroupService manages product groups.
type GroupService struct {
	base
}

// NewGroupService creates a group service.
func NewGroupService(d Deps) *GroupService {
	return &GroupService{base: newBase(d)}
}

func validateKeywords(c *validation.Collector, keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		c.Add(validation.ValidateText("keywords", kw, maxShortLength))
		out = append(out, kw)
	}
	return out
}

// checkUniqueName rejects a name that normalizes to an existing group's name.
func checkUniqueName(ctx context.Context, tx *store.Tx, name, selfID string) error {
	groups, err := tx.ListGroups(ctx)
	if err != nil {
		return err
	}
	norm := Normalize(name)
	for _, g := range groups {
		if g.ID != selfID && Normalize(g.Name) == norm {
			return validation.New("name", "already exists")
		}
	}
	return nil
}

// Add creates a group.
func (s *GroupService) Add(ctx context.Context, in GroupInput) (*types.Group, error) {
	defer s.lock()()

	c := &validation.Collector{}
	name := strings.TrimSpace(in.Name)
	c.Add(validation.ValidateRequired("name", name))
	c.Add(validation.ValidateText("name", name, maxNameLength))
	keywords := validateKeywords(c, in.Keywords)
	if err := c.Err(); err != nil {
		return nil, err
	}

	g := types.Group{
		ID:             s.NewID(),
		Name:           name,
		Keywords:       keywords,
		LastUpdateDate: s.now(),
	}
	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		if err := checkUniqueName(ctx, tx, name, ""); err != nil {
			return err
		}
		return tx.UpsertGroup(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return &g, s.finish(ctx, []Change{upsertChange(stocksync.OperationAdd, g)})
}

// Update applies a partial update.
func (s *GroupService) Update(ctx context.Context, id string, patch GroupPatch) (*types.Group, error) {
	defer s.lock()()

	c := &validation.Collector{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
		c.Add(validation.ValidateRequired("name", name))
		c.Add(validation.ValidateText("name", name, maxNameLength))
	}
	var keywords []string
	if patch.Keywords != nil {
		keywords = validateKeywords(c, *patch.Keywords)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	var result types.Group
	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		g, err := tx.GetGroup(ctx, id)
		if err != nil {
			return notFound(types.KindGroups, id, err)
		}
		if patch.Name != nil {
			if err := checkUniqueName(ctx, tx, *patch.Name, id); err != nil {
				return err
			}
			g.Name = *patch.Name
		}
		if patch.Keywords != nil {
			g.Keywords = keywords
		}
		g.LastUpdateDate = s.now()
		result = *g
		return tx.UpsertGroup(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return &result, s.finish(ctx, []Change{upsertChange(stocksync.OperationUpdate, result)})
}

// Delete removes a group. The default group and groups that still hold
// products cannot be deleted.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	defer s.lock()()

	if id == types.DefaultGroupID {
		return ErrDefaultGroup
	}

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetGroup(ctx, id); err != nil {
			return notFound(types.KindGroups, id, err)
		}
		n, err := tx.CountProductsInGroup(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrGroupInUse
		}
		err = tx.DeleteGroup(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return notFound(types.KindGroups, id, err)
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := s.finish(ctx, []Change{deleteChange(types.KindGroups, id)}); err != nil {
		return err
	}
	return s.verifyDeleted(ctx, types.KindGroups, id)
}
