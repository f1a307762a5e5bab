package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind names an entity collection. The same name is used for the local table
// family, the cache snapshot and the remote mirror collection.
type Kind string

const (
	KindProducts      Kind = "products"
	KindResidues      Kind = "residues"
	KindGroups        Kind = "groups"
	KindNotifications Kind = "notifications"
	KindSettings      Kind = "settings"
	KindHistory       Kind = "history"
)

// Kinds lists every entity kind in refresh order.
var Kinds = []Kind{KindProducts, KindResidues, KindGroups, KindNotifications, KindSettings, KindHistory}

// ParseKind validates a collection name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Entity is implemented by every record the engine stores and mirrors.
type Entity interface {
	EntityID() string
	EntityKind() Kind
}

// Exit types accepted by RegisterExit. Only ExitWeeklyUse feeds the
// weekly-usage counters.
const (
	ExitWeeklyUse = "uso_semanal"
	ExitSale      = "venda"
	ExitLoss      = "perda"
	ExitDiscard   = "descarte"
)

// Notification kinds
const (
	NotificationLowStock = "low_stock"
	NotificationExpiry   = "expiry"
)

// DefaultGroupID identifies the fallback group seeded by the initial migration.
const DefaultGroupID = "other"

// DefaultGroupName is the display name of the fallback group.
const DefaultGroupName = "Other"

// SettingsID is the fixed id of the single settings row.
const SettingsID = "app"

// Product is a stocked perishable item.
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	GroupID        string    `json:"group_id"`
	Lot            string    `json:"lot,omitempty"`
	Quantity       int       `json:"quantity"`
	Unit           string    `json:"unit,omitempty"`
	ExpiryDate     Date      `json:"expiry_date"`
	EntryDate      Date      `json:"entry_date"`
	MinQuantity    int       `json:"min_quantity,omitempty"`
	WeeklyUsage    [7]int    `json:"weekly_usage"`
	Notes          string    `json:"notes,omitempty"`
	LastUpdateDate time.Time `json:"last_update_date"`
}

func (p Product) EntityID() string { return p.ID }
func (p Product) EntityKind() Kind { return KindProducts }

// Residue records waste leaving the operation.
type Residue struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Weight         float64   `json:"weight"`
	Unit           string    `json:"unit"`
	Destination    string    `json:"destination,omitempty"`
	Date           Date      `json:"date"`
	Notes          string    `json:"notes,omitempty"`
	LastUpdateDate time.Time `json:"last_update_date"`
}

func (r Residue) EntityID() string { return r.ID }
func (r Residue) EntityKind() Kind { return KindResidues }

// Group classifies products. Keywords drive automatic classification.
type Group struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Keywords       []string  `json:"keywords"`
	LastUpdateDate time.Time `json:"last_update_date"`
}

func (g Group) EntityID() string { return g.ID }
func (g Group) EntityKind() Kind { return KindGroups }

// Notification is a derived alert about a product.
type Notification struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	ProductID      string    `json:"product_id"`
	Message        string    `json:"message"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdateDate time.Time `json:"last_update_date"`
}

func (n Notification) EntityID() string { return n.ID }
func (n Notification) EntityKind() Kind { return KindNotifications }

// NotificationID returns the deterministic id of a product notification, so
// re-evaluating a product updates its alert instead of stacking duplicates.
func NotificationID(kind, productID string) string {
	return kind + ":" + productID
}

// HistoryEntry is an immutable record of a stock exit.
type HistoryEntry struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason,omitempty"`
	ExitType    string    `json:"exit_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h HistoryEntry) EntityID() string { return h.ID }
func (h HistoryEntry) EntityKind() Kind { return KindHistory }

// Settings holds the engine tunables. It is persisted as a single JSON blob.
type Settings struct {
	LowStockThreshold     int       `json:"low_stock_threshold"`
	ExpiryWarningDays     int       `json:"expiry_warning_days"`
	BackupEnabled         bool      `json:"backup_enabled"`
	SyncIntervalSeconds   int       `json:"sync_interval_seconds"`
	BackupIntervalSeconds int       `json:"backup_interval_seconds"`
	BackoffCapSeconds     int       `json:"backoff_cap_seconds"`
	FailureThreshold      int       `json:"failure_threshold"`
	MaxRejections         int       `json:"max_rejections"`
	LastUpdateDate        time.Time `json:"last_update_date"`
}

func (s Settings) EntityID() string { return SettingsID }
func (s Settings) EntityKind() Kind { return KindSettings }

// DefaultSettings returns the tunables used when none are stored.
func DefaultSettings() Settings {
	return Settings{
		LowStockThreshold:     5,
		ExpiryWarningDays:     30,
		BackupEnabled:         false,
		SyncIntervalSeconds:   30,
		BackupIntervalSeconds: int((24 * time.Hour).Seconds()),
		BackoffCapSeconds:     int((10 * time.Minute).Seconds()),
		FailureThreshold:      3,
		MaxRejections:         5,
	}
}

// WithDefaults replaces absent or invalid (non-positive) values with defaults.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.LowStockThreshold <= 0 {
		s.LowStockThreshold = d.LowStockThreshold
	}
	if s.ExpiryWarningDays <= 0 {
		s.ExpiryWarningDays = d.ExpiryWarningDays
	}
	if s.SyncIntervalSeconds <= 0 {
		s.SyncIntervalSeconds = d.SyncIntervalSeconds
	}
	if s.BackupIntervalSeconds <= 0 {
		s.BackupIntervalSeconds = d.BackupIntervalSeconds
	}
	if s.BackoffCapSeconds <= 0 {
		s.BackoffCapSeconds = d.BackoffCapSeconds
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = d.FailureThreshold
	}
	if s.MaxRejections <= 0 {
		s.MaxRejections = d.MaxRejections
	}
	return s
}

func (s Settings) SyncInterval() time.Duration {
	return time.Duration(s.SyncIntervalSeconds) * time.Second
}

func (s Settings) BackupInterval() time.Duration {
	return time.Duration(s.BackupIntervalSeconds) * time.Second
}

func (s Settings) BackoffCap() time.Duration {
	return time.Duration(s.BackoffCapSeconds) * time.Second
}

// --- Calendar dates ---

// DateLayout is the canonical wire and storage format of a Date.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, time.RFC3339, "02/01/2006"}

// Date is a calendar day without a time-of-day component, held at UTC midnight.
type Date struct {
	t time.Time
}

// NewDate returns the calendar day of t in t's own location.
func NewDate(t time.Time) Date {
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts 2006-01-02, RFC 3339 and 02/01/2006.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("unparseable date %q", s)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns the date as UTC midnight.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// DaysUntil returns the number of calendar days from now's day to d.
// Negative values mean d is already past.
func (d Date) DaysUntil(now time.Time) int {
	today := NewDate(now)
	return int(d.t.Sub(today.t).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
