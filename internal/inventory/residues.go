package inventory

import (
	"context"
	"strings"

	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
	"github.com/hyperengineering/stockroom/internal/validation"
)

// DefaultResidueUnit is used when a residue carries no unit.
const DefaultResidueUnit = "kg"

// ResidueInput is the payload of a new residue record.
type ResidueInput struct {
	Kind        string  `json:"kind"`
	Weight      float64 `json:"weight"`
	Unit        string  `json:"unit,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Date        string  `json:"date"`
	Notes       string  `json:"notes,omitempty"`
}

// ResiduePatch is a partial residue update.
type ResiduePatch struct {
	Kind        *string  `json:"kind,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	Unit        *string  `json:"unit,omitempty"`
	Destination *string  `json:"destination,omitempty"`
	Date        *string  `json:"date,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

// ResidueService manages residue records.
type ResidueService struct {
	base
}

// NewResidueService creates a residue service.
func NewResidueService(d Deps) *ResidueService {
	return &ResidueService{base: newBase(d)}
}

// Add records a residue.
func (s *ResidueService) Add(ctx context.Context, in ResidueInput) (*types.Residue, error) {
	defer s.lock()()

	c := &validation.Collector{}
	kind := strings.TrimSpace(in.Kind)
	c.Add(validation.ValidateRequired("kind", kind))
	c.Add(validation.ValidateText("kind", kind, maxShortLength))
	c.Add(validation.ValidatePositive("weight", in.Weight))
	c.Add(validation.ValidateText("unit", in.Unit, maxShortLength))
	c.Add(validation.ValidateText("destination", in.Destination, maxNameLength))
	c.Add(validation.ValidateText("notes", in.Notes, maxNotesLength))
	date := validation.ParseDate(c, "date", in.Date)
	if err := c.Err(); err != nil {
		return nil, err
	}

	r := types.Residue{
		ID:             s.NewID(),
		Kind:           kind,
		Weight:         in.Weight,
		Unit:           in.Unit,
		Destination:    in.Destination,
		Date:           date,
		Notes:          in.Notes,
		LastUpdateDate: s.now(),
	}
	if r.Unit == "" {
		r.Unit = DefaultResidueUnit
	}

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		return tx.UpsertResidue(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return &r, s.finish(ctx, []Change{upsertChange(stocksync.OperationAdd, r)})
}

// Update applies a partial update.
func (s *ResidueService) Update(ctx context.Context, id string, patch ResiduePatch) (*types.Residue, error) {
	defer s.lock()()

	c := &validation.Collector{}
	if patch.Kind != nil {
		kind := strings.TrimSpace(*patch.Kind)
		patch.Kind = &kind
		c.Add(validation.ValidateRequired("kind", kind))
		c.Add(validation.ValidateText("kind", kind, maxShortLength))
	}
	if patch.Weight != nil {
		c.Add(validation.ValidatePositive("weight", *patch.Weight))
	}
	if patch.Unit != nil {
		c.Add(validation.ValidateText("unit", *patch.Unit, maxShortLength))
	}
	if patch.Destination != nil {
		c.Add(validation.ValidateText("destination", *patch.Destination, maxNameLength))
	}
	if patch.Notes != nil {
		c.Add(validation.ValidateText("notes", *patch.Notes, maxNotesLength))
	}
	var date types.Date
	if patch.Date != nil {
		date = validation.ParseDate(c, "date", *patch.Date)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	var result types.Residue
	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		r, err := tx.GetResidue(ctx, id)
		if err != nil {
			return notFound(types.KindResidues, id, err)
		}
		if patch.Kind != nil {
			r.Kind = *patch.Kind
		}
		if patch.Weight != nil {
			r.Weight = *patch.Weight
		}
		if patch.Unit != nil {
			r.Unit = *patch.Unit
		}
		if patch.Destination != nil {
			r.Destination = *patch.Destination
		}
		if patch.Date != nil {
			r.Date = date
		}
		if patch.Notes != nil {
			r.Notes = *patch.Notes
		}
		r.LastUpdateDate = s.now()
		result = *r
		return tx.UpsertResidue(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return &result, s.finish(ctx, []Change{upsertChange(stocksync.OperationUpdate, result)})
}

// Delete removes a residue record.
func (s *ResidueService) Delete(ctx context.Context, id string) error {
	defer s.lock()()

	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		return notFound(types.KindResidues, id, tx.DeleteResidue(ctx, id))
	})
	if err != nil {
		return err
	}
	if err := s.finish(ctx, []Change{deleteChange(types.KindResidues, id)}); err != nil {
		return err
	}
	return s.verifyDeleted(ctx, types.KindResidues, id)
}
