package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// -- Users --

func (s *SQLiteStore) UpsertUser(ctx context.Context, id int64, username string) error {
	if username == "" {
		username = "unknown"
	}
	const q = `
INSERT INTO users (id, username)
VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET username = excluded.username;
`
	if _, err := s.db.ExecContext(ctx, q, id, username); err != nil {
		return sqliteErr("upsert user", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	const q = `
SELECT id, username, buyer, active_slots, created_at
FROM users
WHERE id = ?
LIMIT 1;
`
	var u User
	row := s.db.QueryRowContext(ctx, q, id)
	if err := row.Scan(&u.ID, &u.Username, &u.Buyer, &u.ActiveSlots, &u.CreatedAt); err != nil {
		return nil, sqliteErr("get user", err)
	}
	return &u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	const q = `
SELECT id, username, buyer, active_slots, created_at
FROM users
ORDER BY id ASC;
`
	return s.queryUsers(ctx, q)
}

func (s *SQLiteStore) ListBuyers(ctx context.Context) ([]User, error) {
	const q = `
SELECT id, username, buyer, active_slots, created_at
FROM users
WHERE buyer = 1
ORDER BY id ASC;
`
	return s.queryUsers(ctx, q)
}

func (s *SQLiteStore) queryUsers(ctx context.Context, q string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, sqliteErr("list users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Buyer, &u.ActiveSlots, &u.CreatedAt); err != nil {
			return nil, sqliteErr("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("iterate users", err)
	}
	return users, nil
}

func (s *SQLiteStore) MarkBuyer(ctx context.Context, id int64) error {
	// The flag is monotonic: it is only ever set, never cleared.
	const q = `UPDATE users SET buyer = 1 WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return sqliteErr("mark buyer", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("mark buyer %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) AdjustActiveSlots(ctx context.Context, id int64, delta int) error {
	// MAX floors the counter at zero on decrement.
	const q = `UPDATE users SET active_slots = MAX(active_slots + ?, 0) WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, delta, id)
	if err != nil {
		return sqliteErr("adjust active slots", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("adjust active slots %d: %w", id, ErrNotFound)
	}
	return nil
}

// -- Slots --

func (s *SQLiteStore) InsertSlot(ctx context.Context, slot Slot) (*Slot, error) {
	const q = `
INSERT INTO slots (name, photo, sizes, price, owner_id, description)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, name, photo, sizes, price, owner_id, description, channel_id, message_id;
`
	row := s.db.QueryRowContext(ctx, q,
		slot.Name,
		slot.Photo,
		slot.Sizes,
		slot.Price,
		slot.OwnerID,
		slot.Description,
	)
	var inserted Slot
	if err := row.Scan(&inserted.ID, &inserted.Name, &inserted.Photo, &inserted.Sizes, &inserted.Price, &inserted.OwnerID, &inserted.Description, &inserted.ChannelID, &inserted.MessageID); err != nil {
		return nil, sqliteErr("insert slot", err)
	}
	return &inserted, nil
}

func (s *SQLiteStore) GetSlot(ctx context.Context, id int64) (*Slot, error) {
	const q = `
SELECT id, name, photo, sizes, price, owner_id, description, channel_id, message_id
FROM slots
WHERE id = ?
LIMIT 1;
`
	var slot Slot
	row := s.db.QueryRowContext(ctx, q, id)
	if err := row.Scan(&slot.ID, &slot.Name, &slot.Photo, &slot.Sizes, &slot.Price, &slot.OwnerID, &slot.Description, &slot.ChannelID, &slot.MessageID); err != nil {
		return nil, sqliteErr("get slot", err)
	}
	return &slot, nil
}

func (s *SQLiteStore) ListSlots(ctx context.Context) ([]Slot, error) {
	const q = `
SELECT id, name, photo, sizes, price, owner_id, description, channel_id, message_id
FROM slots
ORDER BY id ASC;
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, sqliteErr("list slots", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ID, &slot.Name, &slot.Photo, &slot.Sizes, &slot.Price, &slot.OwnerID, &slot.Description, &slot.ChannelID, &slot.MessageID); err != nil {
			return nil, sqliteErr("scan slot", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("iterate slots", err)
	}
	return slots, nil
}

// Slot field updates form a closed set of typed operations; there is no
// generic "set column X" path.

func (s *SQLiteStore) RenameSlot(ctx context.Context, id int64, name string) error {
	const q = `UPDATE slots SET name = ? WHERE id = ?;`
	return s.updateSlotField(ctx, "rename slot", q, name, id)
}

func (s *SQLiteStore) RepriceSlot(ctx context.Context, id int64, price string) error {
	const q = `UPDATE slots SET price = ? WHERE id = ?;`
	return s.updateSlotField(ctx, "reprice slot", q, price, id)
}

func (s *SQLiteStore) RephotoSlot(ctx context.Context, id int64, photo string) error {
	const q = `UPDATE slots SET photo = ? WHERE id = ?;`
	return s.updateSlotField(ctx, "rephoto slot", q, photo, id)
}

func (s *SQLiteStore) RedescribeSlot(ctx context.Context, id int64, description string) error {
	const q = `UPDATE slots SET description = ? WHERE id = ?;`
	return s.updateSlotField(ctx, "redescribe slot", q, description, id)
}

func (s *SQLiteStore) updateSlotField(ctx context.Context, op, q string, value any, id int64) error {
	ct, err := s.db.ExecContext(ctx, q, value, id)
	if err != nil {
		return sqliteErr(op, err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SwapSlotSizes(ctx context.Context, id int64, old, new string) (bool, error) {
	const q = `UPDATE slots SET sizes = ? WHERE id = ? AND sizes = ?;`
	ct, err := s.db.ExecContext(ctx, q, new, id, old)
	if err != nil {
		return false, sqliteErr("swap slot sizes", err)
	}
	n, _ := ct.RowsAffected()
	return n == 1, nil
}

func (s *SQLiteStore) SetSlotPost(ctx context.Context, id int64, channelID, messageID int64) error {
	const q = `UPDATE slots SET channel_id = ?, message_id = ? WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, channelID, messageID, id)
	if err != nil {
		return sqliteErr("set slot post", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("set slot post %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteSlot(ctx context.Context, id int64) error {
	const q = `DELETE FROM slots WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return sqliteErr("delete slot", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("delete slot %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ResetSlots(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteErr("reset slots", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM slots;`); err != nil {
		return sqliteErr("reset slots", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'slots';`); err != nil {
		return sqliteErr("reset slot sequence", err)
	}
	if err := tx.Commit(); err != nil {
		return sqliteErr("reset slots commit", err)
	}
	return nil
}

// -- Orders --

func (s *SQLiteStore) CreateOrder(ctx context.Context, userID int64, username string, slotID int64, size string) (*Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, sqliteErr("create order", err)
	}
	defer tx.Rollback()

	const insertQ = `
INSERT INTO orders (user_id, username, slot_id, size, status)
VALUES (?, ?, ?, ?, 'pending')
RETURNING id, user_id, username, slot_id, size, delivery, address, proof, status, created_at;
`
	var order Order
	row := tx.QueryRowContext(ctx, insertQ, userID, username, slotID, size)
	if err := row.Scan(&order.ID, &order.UserID, &order.Username, &order.SlotID, &order.Size, &order.Delivery, &order.Address, &order.Proof, &order.Status, &order.CreatedAt); err != nil {
		return nil, sqliteErr("insert order", err)
	}

	const counterQ = `UPDATE users SET active_slots = active_slots + 1 WHERE id = ?;`
	ct, err := tx.ExecContext(ctx, counterQ, userID)
	if err != nil {
		return nil, sqliteErr("increment active slots", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("increment active slots %d: %w", userID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, sqliteErr("create order commit", err)
	}
	return &order, nil
}

const sqliteOrderDetailColumns = `
o.id, o.user_id, o.username, o.slot_id, o.size, o.delivery, o.address, o.proof, o.status, o.created_at,
s.name, s.price
`

func (s *SQLiteStore) GetOrder(ctx context.Context, id int64) (*OrderDetail, error) {
	q := `
SELECT ` + sqliteOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
WHERE o.id = ?
LIMIT 1;
`
	row := s.db.QueryRowContext(ctx, q, id)
	detail, err := scanSQLiteOrderDetail(row.Scan)
	if err != nil {
		return nil, sqliteErr("get order", err)
	}
	return detail, nil
}

func (s *SQLiteStore) TransitionOrder(ctx context.Context, id int64, from []string, next string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition order: empty precondition")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	q := `UPDATE orders SET status = ? WHERE id = ? AND status IN (` + placeholders + `);`

	args := make([]any, 0, len(from)+2)
	args = append(args, next, id)
	for _, st := range from {
		args = append(args, st)
	}

	ct, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, sqliteErr("transition order", err)
	}
	n, _ := ct.RowsAffected()
	return n == 1, nil
}

func (s *SQLiteStore) CompleteOrder(ctx context.Context, id int64, from []string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("complete order: empty precondition")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, sqliteErr("complete order", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	q := `UPDATE orders SET status = 'completed' WHERE id = ? AND status IN (` + placeholders + `) RETURNING user_id;`
	args := make([]any, 0, len(from)+1)
	args = append(args, id)
	for _, st := range from {
		args = append(args, st)
	}

	var userID int64
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, sqliteErr("complete order", err)
	}

	const userQ = `UPDATE users SET active_slots = MAX(active_slots - 1, 0), buyer = 1 WHERE id = ?;`
	ct, err := tx.ExecContext(ctx, userQ, userID)
	if err != nil {
		return false, sqliteErr("complete order user", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return false, fmt.Errorf("complete order user %d: %w", userID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return false, sqliteErr("complete order commit", err)
	}
	return true, nil
}

func (s *SQLiteStore) SetOrderProof(ctx context.Context, id int64, proof string) error {
	const q = `UPDATE orders SET proof = ? WHERE id = ?;`
	return s.updateOrderField(ctx, "set order proof", q, proof, id)
}

func (s *SQLiteStore) SetOrderDelivery(ctx context.Context, id int64, delivery string) error {
	const q = `UPDATE orders SET delivery = ? WHERE id = ?;`
	return s.updateOrderField(ctx, "set order delivery", q, delivery, id)
}

func (s *SQLiteStore) SetOrderAddress(ctx context.Context, id int64, address string) error {
	const q = `UPDATE orders SET address = ? WHERE id = ?;`
	return s.updateOrderField(ctx, "set order address", q, address, id)
}

func (s *SQLiteStore) ClearOrderDelivery(ctx context.Context, id int64) error {
	const q = `UPDATE orders SET delivery = NULL, address = NULL WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return sqliteErr("clear order delivery", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("clear order delivery %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) updateOrderField(ctx context.Context, op, q string, value any, id int64) error {
	ct, err := s.db.ExecContext(ctx, q, value, id)
	if err != nil {
		return sqliteErr(op, err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListUserOrders(ctx context.Context, userID int64) ([]OrderDetail, error) {
	q := `
SELECT ` + sqliteOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
WHERE o.user_id = ?
ORDER BY o.created_at DESC, o.id DESC;
`
	return s.queryOrderDetails(ctx, q, userID)
}

func (s *SQLiteStore) ListActiveOrders(ctx context.Context) ([]OrderDetail, error) {
	q := `
SELECT ` + sqliteOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
WHERE o.status IN ('paid', 'processing', 'shipped')
ORDER BY o.created_at DESC, o.id DESC;
`
	return s.queryOrderDetails(ctx, q)
}

func (s *SQLiteStore) ListOrderHistory(ctx context.Context) ([]OrderDetail, error) {
	q := `
SELECT ` + sqliteOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
ORDER BY o.created_at DESC, o.id DESC;
`
	return s.queryOrderDetails(ctx, q)
}

func (s *SQLiteStore) queryOrderDetails(ctx context.Context, q string, args ...any) ([]OrderDetail, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, sqliteErr("list orders", err)
	}
	defer rows.Close()

	var details []OrderDetail
	for rows.Next() {
		detail, err := scanSQLiteOrderDetail(rows.Scan)
		if err != nil {
			return nil, sqliteErr("scan order", err)
		}
		details = append(details, *detail)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("iterate orders", err)
	}
	return details, nil
}

func scanSQLiteOrderDetail(scan func(...any) error) (*OrderDetail, error) {
	var d OrderDetail
	var slotName, slotPrice sql.NullString
	if err := scan(
		&d.ID, &d.UserID, &d.Username, &d.SlotID, &d.Size, &d.Delivery, &d.Address, &d.Proof, &d.Status, &d.CreatedAt,
		&slotName, &slotPrice,
	); err != nil {
		return nil, err
	}
	d.SlotName = DeletedSlotName
	if slotName.Valid {
		d.SlotName = slotName.String
	}
	d.SlotPrice = slotPrice.String
	return &d, nil
}
