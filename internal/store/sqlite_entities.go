package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/stockroom/internal/types"
)

// tableNames maps entity kinds to their local tables.
var tableNames = map[types.Kind]string{
	types.KindProducts:      "products",
	types.KindResidues:      "residues",
	types.KindGroups:        "product_groups",
	types.KindNotifications: "notifications",
	types.KindSettings:      "settings",
	types.KindHistory:       "history",
}

// Exists reports whether a row with id is present in the kind's table.
func (q queries) Exists(ctx context.Context, kind types.Kind, id string) (bool, error) {
	table, ok := tableNames[kind]
	if !ok {
		return false, fmt.Errorf("unknown entity kind %q", kind)
	}

	var n int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, storeErr("check "+table+" row", err)
	}
	return n > 0, nil
}

// deleteByID removes a row, returning ErrNotFound when nothing was deleted.
func (q queries) deleteByID(ctx context.Context, table, id string) error {
	result, err := q.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return storeErr("delete from "+table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeErr("delete from "+table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Products ---

const productColumns = `id, name, group_id, lot, quantity, unit, expiry_date, entry_date,
	min_quantity, weekly_usage, notes, last_update_date`

func scanProduct(scanner interface{ Scan(...any) error }) (*types.Product, error) {
	var p types.Product
	var expiry, entry, weekly, updated string

	err := scanner.Scan(&p.ID, &p.Name, &p.GroupID, &p.Lot, &p.Quantity, &p.Unit,
		&expiry, &entry, &p.MinQuantity, &weekly, &p.Notes, &updated)
	if err != nil {
		return nil, err
	}

	if expiry != "" {
		if p.ExpiryDate, err = types.ParseDate(expiry); err != nil {
			return nil, fmt.Errorf("parse expiry_date: %w", err)
		}
	}
	if entry != "" {
		if p.EntryDate, err = types.ParseDate(entry); err != nil {
			return nil, fmt.Errorf("parse entry_date: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(weekly), &p.WeeklyUsage); err != nil {
		return nil, fmt.Errorf("parse weekly_usage: %w", err)
	}
	p.LastUpdateDate = parseTime("products.last_update_date", updated)

	return &p, nil
}

// GetProduct returns the product with id or ErrNotFound.
func (q queries) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get product", err)
	}
	return p, nil
}

// ListProducts returns every product ordered by name, then id.
func (q queries) ListProducts(ctx context.Context) ([]types.Product, error) {
	return q.listProducts(ctx, "SELECT "+productColumns+" FROM products ORDER BY name COLLATE NOCASE, id")
}

// ListProductsByGroupAndExpiry returns candidates for duplicate detection.
func (q queries) ListProductsByGroupAndExpiry(ctx context.Context, groupID string, expiry types.Date) ([]types.Product, error) {
	return q.listProducts(ctx,
		"SELECT "+productColumns+" FROM products WHERE group_id = ? AND expiry_date = ? ORDER BY id",
		groupID, expiry.String())
}

// CountProductsInGroup returns how many products reference groupID.
func (q queries) CountProductsInGroup(ctx context.Context, groupID string) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE group_id = ?", groupID).Scan(&n); err != nil {
		return 0, storeErr("count products in group", err)
	}
	return n, nil
}

func (q queries) listProducts(ctx context.Context, query string, args ...any) ([]types.Product, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query products", err)
	}
	defer rows.Close()

	products := make([]types.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storeErr("scan product", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate products", err)
	}
	return products, nil
}

// UpsertProduct inserts or replaces a product by id.
func (q queries) UpsertProduct(ctx context.Context, p types.Product) error {
	weekly, err := json.Marshal(p.WeeklyUsage)
	if err != nil {
		return fmt.Errorf("marshal weekly_usage: %w", err)
	}

	_, err = q.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			group_id = excluded.group_id,
			lot = excluded.lot,
			quantity = excluded.quantity,
			unit = excluded.unit,
			expiry_date = excluded.expiry_date,
			entry_date = excluded.entry_date,
			min_quantity = excluded.min_quantity,
			weekly_usage = excluded.weekly_usage,
			notes = excluded.notes,
			last_update_date = excluded.last_update_date
	`, p.ID, p.Name, p.GroupID, p.Lot, p.Quantity, p.Unit, p.ExpiryDate.String(), p.EntryDate.String(),
		p.MinQuantity, string(weekly), p.Notes, formatTime(p.LastUpdateDate))
	if err != nil {
		return storeErr("upsert product", err)
	}
	return nil
}

// DeleteProduct removes a product or returns ErrNotFound.
func (q queries) DeleteProduct(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "products", id)
}

// --- Groups ---

func scanGroup(scanner interface{ Scan(...any) error }) (*types.Group, error) {
	var g types.Group
	var keywords, updated string
	if err := scanner.Scan(&g.ID, &g.Name, &keywords, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywords), &g.Keywords); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	if g.Keywords == nil {
		g.Keywords = []string{}
	}
	g.LastUpdateDate = parseTime("product_groups.last_update_date", updated)
	return &g, nil
}

// GetGroup returns the group with id or ErrNotFound.
func (q queries) GetGroup(ctx context.Context, id string) (*types.Group, error) {
	row := q.q.QueryRowContext(ctx, "SELECT id, name, keywords, last_update_date FROM product_groups WHERE id = ?", id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get group", err)
	}
	return g, nil
}

// ListGroups returns groups in creation order (ULID ids sort by time).
func (q queries) ListGroups(ctx context.Context) ([]types.Group, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT id, name, keywords, last_update_date FROM product_groups ORDER BY id")
	if err != nil {
		return nil, storeErr("query groups", err)
	}
	defer rows.Close()

	groups := make([]types.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, storeErr("scan group", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate groups", err)
	}
	return groups, nil
}

// UpsertGroup inserts or replaces a group by id.
func (q queries) UpsertGroup(ctx context.Context, g types.Group) error {
	keywords := g.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = q.q.ExecContext(ctx, `
		INSERT INTO product_groups (id, name, keywords, last_update_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			keywords = excluded.keywords,
			last_update_date = excluded.last_update_date
	`, g.ID, g.Name, string(data), formatTime(g.LastUpdateDate))
	if err != nil {
		return storeErr("upsert group", err)
	}
	return nil
}

// DeleteGroup removes a group or returns ErrNotFound.
func (q queries) DeleteGroup(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "product_groups", id)
}

// --- Residues ---

func scanResidue(scanner interface{ Scan(...any) error }) (*types.Residue, error) {
	var r types.Residue
	var date, updated string
	err := scanner.Scan(&r.ID, &r.Kind, &r.Weight, &r.Unit, &r.Destination, &date, &r.Notes, &updated)
	if err != nil {
		return nil, err
	}
	if date != "" {
		if r.Date, err = types.ParseDate(date); err != nil {
			return nil, fmt.Errorf("parse date: %w", err)
		}
	}
	r.LastUpdateDate = parseTime("residues.last_update_date", updated)
	return &r, nil
}

const residueColumns = "id, kind, weight, unit, destination, date, notes, last_update_date"

// GetResidue returns the residue with id or ErrNotFound.
func (q queries) GetResidue(ctx context.Context, id string) (*types.Residue, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+residueColumns+" FROM residues WHERE id = ?", id)
	r, err := scanResidue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get residue", err)
	}
	return r, nil
}

// ListResidues returns residues newest first.
func (q queries) ListResidues(ctx context.Context) ([]types.Residue, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT "+residueColumns+" FROM residues ORDER BY date DESC, id DESC")
	if err != nil {
		return nil, storeErr("query residues", err)
	}
	defer rows.Close()

	residues := make([]types.Residue, 0)
	for rows.Next() {
		r, err := scanResidue(rows)
		if err != nil {
			return nil, storeErr("scan residue", err)
		}
		residues = append(residues, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate residues", err)
	}
	return residues, nil
}

// UpsertResidue inserts or replaces a residue by id.
func (q queries) UpsertResidue(ctx context.Context, r types.Residue) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO residues (`+residueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			weight = excluded.weight,
			unit = excluded.unit,
			destination = excluded.destination,
			date = excluded.date,
			notes = excluded.notes,
			last_update_date = excluded.last_update_date
	`, r.ID, r.Kind, r.Weight, r.Unit, r.Destination, r.Date.String(), r.Notes, formatTime(r.LastUpdateDate))
	if err != nil {
		return storeErr("upsert residue", err)
	}
	return nil
}

// DeleteResidue removes a residue or returns ErrNotFound.
func (q queries) DeleteResidue(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "residues", id)
}

// --- Notifications ---

const notificationColumns = "id, kind, product_id, message, read, created_at, last_update_date"

func scanNotification(scanner interface{ Scan(...any) error }) (*types.Notification, error) {
	var n types.Notification
	var created, updated string
	if err := scanner.Scan(&n.ID, &n.Kind, &n.ProductID, &n.Message, &n.Read, &created, &updated); err != nil {
		return nil, err
	}
	n.CreatedAt = parseTime("notifications.created_at", created)
	n.LastUpdateDate = parseTime("notifications.last_update_date", updated)
	return &n, nil
}

// GetNotification returns the notification with id or ErrNotFound.
func (q queries) GetNotification(ctx context.Context, id string) (*types.Notification, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get notification", err)
	}
	return n, nil
}

// ListNotifications returns notifications newest first.
func (q queries) ListNotifications(ctx context.Context) ([]types.Notification, error) {
	return q.listNotifications(ctx, "SELECT "+notificationColumns+" FROM notifications ORDER BY created_at DESC, id")
}

// ListNotificationsForProduct returns the notifications attached to a product.
func (q queries) ListNotificationsForProduct(ctx context.Context, productID string) ([]types.Notification, error) {
	return q.listNotifications(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE product_id = ? ORDER BY id", productID)
}

func (q queries) listNotifications(ctx context.Context, query string, args ...any) ([]types.Notification, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query notifications", err)
	}
	defer rows.Close()

	notifications := make([]types.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, storeErr("scan notification", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate notifications", err)
	}
	return notifications, nil
}

// UpsertNotification inserts or replaces a notification by id.
func (q queries) UpsertNotification(ctx context.Context, n types.Notification) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			product_id = excluded.product_id,
			message = excluded.message,
			read = excluded.read,
			last_update_date = excluded.last_update_date
	`, n.ID, n.Kind, n.ProductID, n.Message, n.Read, formatTime(n.CreatedAt), formatTime(n.LastUpdateDate))
	if err != nil {
		return storeErr("upsert notification", err)
	}
	return nil
}

// DeleteNotification removes a notification or returns ErrNotFound.
func (q queries) DeleteNotification(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "notifications", id)
}

// --- History ---

// AppendHistory inserts an immutable history entry.
func (q queries) AppendHistory(ctx context.Context, h types.HistoryEntry) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO history (id, product_id, product_name, quantity, reason, exit_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.ProductID, h.ProductName, h.Quantity, h.Reason, h.ExitType, formatTime(h.CreatedAt))
	if err != nil {
		return storeErr("append history", err)
	}
	return nil
}

// ListHistory returns up to limit entries, newest first. limit <= 0 means all.
func (q queries) ListHistory(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, reason, exit_type, created_at
		FROM history
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storeErr("query history", err)
	}
	defer rows.Close()

	entries := make([]types.HistoryEntry, 0)
	for rows.Next() {
		var h types.HistoryEntry
		var created string
		if err := rows.Scan(&h.ID, &h.ProductID, &h.ProductName, &h.Quantity, &h.Reason, &h.ExitType, &created); err != nil {
			return nil, storeErr("scan history", err)
		}
		h.CreatedAt = parseTime("history.created_at", created)
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate history", err)
	}
	return entries, nil
}

// --- Settings ---

// GetSettings returns the stored settings with defaults applied. A missing or
// corrupt row yields the defaults.
func (q queries) GetSettings(ctx context.Context) (types.Settings, error) {
	var data, updated string
	err := q.q.QueryRowContext(ctx,
		"SELECT data, last_update_date FROM settings WHERE id = ?", types.SettingsID).Scan(&data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DefaultSettings(), nil
	}
	if err != nil {
		return types.Settings{}, storeErr("get settings", err)
	}

	var s types.Settings
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		slog.Warn("settings blob unreadable, using defaults",
			"component", "store",
			"error", err,
		)
		return types.DefaultSettings(), nil
	}
	s.LastUpdateDate = parseTime("settings.last_update_date", updated)
	return s.WithDefaults(), nil
}

// PutSettings replaces the settings row.
func (q queries) PutSettings(ctx context.Context, s types.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO settings (id, data, last_update_date) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, last_update_date = excluded.last_update_date
	`, types.SettingsID, string(data), formatTime(s.LastUpdateDate))
	if err != nil {
		return storeErr("put settings", err)
	}
	return nil
}
