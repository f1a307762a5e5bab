package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperengineering/stockroom/internal/inventory"
	"github.com/hyperengineering/stockroom/internal/types"
	"github.com/hyperengineering/stockroom/internal/validation"
)

// decode unmarshals a collaborator payload, reporting malformed input as a
// validation error naming the offending field.
func decode(payload json.RawMessage, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return validation.New("body", "is required")
	}
	err := json.Unmarshal(payload, v)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return validation.New(field, "must be of type "+typeErr.Type.String())
	}
	return validation.New("body", "must be valid JSON")
}

// entity drops a typed nil so callers never see a non-nil interface
// alongside an error.
func entity[T types.Entity](v T, err error) (types.Entity, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

// AddEntity creates an entity of kind from a JSON payload.
func (e *Engine) AddEntity(ctx context.Context, kind types.Kind, payload json.RawMessage) (types.Entity, error) {
	switch kind {
	case types.KindProducts:
		var in inventory.ProductInput
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		return entity(e.Products.Add(ctx, in))
	case types.KindResidues:
		var in inventory.ResidueInput
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		return entity(e.Residues.Add(ctx, in))
	case types.KindGroups:
		var in inventory.GroupInput
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		return entity(e.Groups.Add(ctx, in))
	case types.KindNotifications, types.KindSettings, types.KindHistory:
		return nil, fmt.Errorf("add %s: %w", kind, ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// notificationPatch is the only update a collaborator may make to a
// derived notification.
type notificationPatch struct {
	Read *bool `json:"read"`
}

// UpdateEntity applies a partial update to the entity of kind with id.
func (e *Engine) UpdateEntity(ctx context.Context, kind types.Kind, id string, payload json.RawMessage) (types.Entity, error) {
	switch kind {
	case types.KindProducts:
		var patch inventory.ProductPatch
		if err := decode(payload, &patch); err != nil {
			return nil, err
		}
		return entity(e.Products.Update(ctx, id, patch))
	case types.KindResidues:
		var patch inventory.ResiduePatch
		if err := decode(payload, &patch); err != nil {
			return nil, err
		}
		return entity(e.Residues.Update(ctx, id, patch))
	case types.KindGroups:
		var patch inventory.GroupPatch
		if err := decode(payload, &patch); err != nil {
			return nil, err
		}
		return entity(e.Groups.Update(ctx, id, patch))
	case types.KindNotifications:
		var patch notificationPatch
		if err := decode(payload, &patch); err != nil {
			return nil, err
		}
		if patch.Read == nil || !*patch.Read {
			return nil, validation.New("read", "must be true")
		}
		return entity(e.Notifications.MarkRead(ctx, id))
	case types.KindSettings:
		if id != types.SettingsID {
			return nil, fmt.Errorf("%s %q: %w", kind, id, inventory.ErrNotFound)
		}
		var patch inventory.SettingsPatch
		if err := decode(payload, &patch); err != nil {
			return nil, err
		}
		return entity(e.Settings.Update(ctx, patch))
	case types.KindHistory:
		return nil, fmt.Errorf("update %s: %w", kind, ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// DeleteEntity removes the entity of kind with id.
func (e *Engine) DeleteEntity(ctx context.Context, kind types.Kind, id string) error {
	switch kind {
	case types.KindProducts:
		return e.Products.Delete(ctx, id)
	case types.KindResidues:
		return e.Residues.Delete(ctx, id)
	case types.KindGroups:
		return e.Groups.Delete(ctx, id)
	case types.KindNotifications:
		return e.Notifications.Delete(ctx, id)
	case types.KindSettings, types.KindHistory:
		return fmt.Errorf("delete %s: %w", kind, ErrUnsupported)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
