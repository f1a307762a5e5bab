package inventory

import (
	"context"
	"slices"
	"sync"

	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
	"github.com/hyperengineering/stockroom/internal/validation"
)

// SettingsPatch is a partial settings update.
type SettingsPatch struct {
	LowStockThreshold     *int  `json:"low_stock_threshold,omitempty"`
	ExpiryWarningDays     *int  `json:"expiry_warning_days,omitempty"`
	BackupEnabled         *bool `json:"backup_enabled,omitempty"`
	SyncIntervalSeconds   *int  `json:"sync_interval_seconds,omitempty"`
	BackupIntervalSeconds *int  `json:"backup_interval_seconds,omitempty"`
	BackoffCapSeconds     *int  `json:"backoff_cap_seconds,omitempty"`
	FailureThreshold      *int  `json:"failure_threshold,omitempty"`
	MaxRejections         *int  `json:"max_rejections,omitempty"`
}

// SettingsService reads and updates the single settings row and notifies
// observers of every change.
type SettingsService struct {
	base

	mu        sync.Mutex
	observers []func(types.Settings)
}

// NewSettingsService creates a settings service.
func NewSettingsService(d Deps) *SettingsService {
	return &SettingsService{base: newBase(d)}
}

// OnChange registers fn to run after every committed settings update.
func (s *SettingsService) OnChange(fn func(types.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Get returns the current settings with defaults applied.
func (s *SettingsService) Get(ctx context.Context) (types.Settings, error) {
	return s.Store.GetSettings(ctx)
}

// Update applies a partial update. Observers run after the write lock is
// released, so they may call other services.
func (s *SettingsService) Update(ctx context.Context, patch SettingsPatch) (types.Settings, error) {
	result, committed, err := s.update(ctx, patch)
	if !committed {
		return result, err
	}

	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(result)
	}
	return result, err
}

// update commits and mirrors the patch, reporting whether it committed.
func (s *SettingsService) update(ctx context.Context, patch SettingsPatch) (types.Settings, bool, error) {
	defer s.lock()()

	c := &validation.Collector{}
	positive := []struct {
		field string
		value *int
	}{
		{"low_stock_threshold", patch.LowStockThreshold},
		{"expiry_warning_days", patch.ExpiryWarningDays},
		{"sync_interval_seconds", patch.SyncIntervalSeconds},
		{"backup_interval_seconds", patch.BackupIntervalSeconds},
		{"backoff_cap_seconds", patch.BackoffCapSeconds},
		{"failure_threshold", patch.FailureThreshold},
		{"max_rejections", patch.MaxRejections},
	}
	for _, p := range positive {
		if p.value != nil {
			c.Add(validation.ValidatePositiveInt(p.field, *p.value))
		}
	}
	if err := c.Err(); err != nil {
		return types.Settings{}, false, err
	}

	var result types.Settings
	err := s.Store.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		cur, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		apply(&cur.LowStockThreshold, patch.LowStockThreshold)
		apply(&cur.ExpiryWarningDays, patch.ExpiryWarningDays)
		apply(&cur.BackupEnabled, patch.BackupEnabled)
		apply(&cur.SyncIntervalSeconds, patch.SyncIntervalSeconds)
		apply(&cur.BackupIntervalSeconds, patch.BackupIntervalSeconds)
		apply(&cur.BackoffCapSeconds, patch.BackoffCapSeconds)
		apply(&cur.FailureThreshold, patch.FailureThreshold)
		apply(&cur.MaxRejections, patch.MaxRejections)
		cur = cur.WithDefaults()
		cur.LastUpdateDate = s.now()
		result = cur
		return tx.PutSettings(ctx, cur)
	})
	if err != nil {
		return types.Settings{}, false, err
	}

	return result, true, s.finish(ctx, []Change{upsertChange(stocksync.OperationUpdate, result)})
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
