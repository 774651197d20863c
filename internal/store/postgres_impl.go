package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// -- Users --

func (s *PostgresStore) UpsertUser(ctx context.Context, id int64, username string) error {
	if username == "" {
		username = "unknown"
	}
	const q = `
INSERT INTO users (id, username)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username;
`
	if _, err := s.pool.Exec(ctx, q, id, username); err != nil {
		return pgErr("upsert user", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	const q = `
SELECT id, username, buyer, active_slots, created_at
FROM users
WHERE id = $1
LIMIT 1;
`
	var u User
	row := s.pool.QueryRow(ctx, q, id)
	if err := row.Scan(&u.ID, &u.Username, &u.Buyer, &u.ActiveSlots, &u.CreatedAt); err != nil {
		return nil, pgErr("get user", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	const q = `
SELECT id, username, buyer, active_slots, created_at
FROM users
ORDER BY id ASC;
`
	return s.queryUsers(ctx, q)
}

func (s *PostgresStore) ListBuyers(ctx context.Context) ([]User, error) {
	const q = `
SELECT id, username, buyer, active_slots, created_at
FROM users
WHERE buyer
ORDER BY id ASC;
`
	return s.queryUsers(ctx, q)
}

func (s *PostgresStore) queryUsers(ctx context.Context, q string) ([]User, error) {
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, pgErr("list users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Buyer, &u.ActiveSlots, &u.CreatedAt); err != nil {
			return nil, pgErr("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr("iterate users", err)
	}
	return users, nil
}

func (s *PostgresStore) MarkBuyer(ctx context.Context, id int64) error {
	const q = `UPDATE users SET buyer = TRUE WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return pgErr("mark buyer", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("mark buyer %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AdjustActiveSlots(ctx context.Context, id int64, delta int) error {
	const q = `UPDATE users SET active_slots = GREATEST(active_slots + $1, 0) WHERE id = $2;`
	ct, err := s.pool.Exec(ctx, q, delta, id)
	if err != nil {
		return pgErr("adjust active slots", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("adjust active slots %d: %w", id, ErrNotFound)
	}
	return nil
}

// -- Slots --

func (s *PostgresStore) InsertSlot(ctx context.Context, slot Slot) (*Slot, error) {
	const q = `
INSERT INTO slots (name, photo, sizes, price, owner_id, description)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, name, photo, sizes, price, owner_id, description, channel_id, message_id;
`
	row := s.pool.QueryRow(ctx, q,
		slot.Name,
		slot.Photo,
		slot.Sizes,
		slot.Price,
		slot.OwnerID,
		slot.Description,
	)
	var inserted Slot
	if err := row.Scan(&inserted.ID, &inserted.Name, &inserted.Photo, &inserted.Sizes, &inserted.Price, &inserted.OwnerID, &inserted.Description, &inserted.ChannelID, &inserted.MessageID); err != nil {
		return nil, pgErr("insert slot", err)
	}
	return &inserted, nil
}

func (s *PostgresStore) GetSlot(ctx context.Context, id int64) (*Slot, error) {
	const q = `
SELECT id, name, photo, sizes, price, owner_id, description, channel_id, message_id
FROM slots
WHERE id = $1
LIMIT 1;
`
	var slot Slot
	row := s.pool.QueryRow(ctx, q, id)
	if err := row.Scan(&slot.ID, &slot.Name, &slot.Photo, &slot.Sizes, &slot.Price, &slot.OwnerID, &slot.Description, &slot.ChannelID, &slot.MessageID); err != nil {
		return nil, pgErr("get slot", err)
	}
	return &slot, nil
}

func (s *PostgresStore) ListSlots(ctx context.Context) ([]Slot, error) {
	const q = `
SELECT id, name, photo, sizes, price, owner_id, description, channel_id, message_id
FROM slots
ORDER BY id ASC;
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, pgErr("list slots", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ID, &slot.Name, &slot.Photo, &slot.Sizes, &slot.Price, &slot.OwnerID, &slot.Description, &slot.ChannelID, &slot.MessageID); err != nil {
			return nil, pgErr("scan slot", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr("iterate slots", err)
	}
	return slots, nil
}

func (s *PostgresStore) RenameSlot(ctx context.Context, id int64, name string) error {
	const q = `UPDATE slots SET name = $1 WHERE id = $2;`
	return s.updateSlotField(ctx, "rename slot", q, name, id)
}

func (s *PostgresStore) RepriceSlot(ctx context.Context, id int64, price string) error {
	const q = `UPDATE slots SET price = $1 WHERE id = $2;`
	return s.updateSlotField(ctx, "reprice slot", q, price, id)
}

func (s *PostgresStore) RephotoSlot(ctx context.Context, id int64, photo string) error {
	const q = `UPDATE slots SET photo = $1 WHERE id = $2;`
	return s.updateSlotField(ctx, "rephoto slot", q, photo, id)
}

func (s *PostgresStore) RedescribeSlot(ctx context.Context, id int64, description string) error {
	const q = `UPDATE slots SET description = $1 WHERE id = $2;`
	return s.updateSlotField(ctx, "redescribe slot", q, description, id)
}

func (s *PostgresStore) updateSlotField(ctx context.Context, op, q string, value any, id int64) error {
	ct, err := s.pool.Exec(ctx, q, value, id)
	if err != nil {
		return pgErr(op, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SwapSlotSizes(ctx context.Context, id int64, old, new string) (bool, error) {
	const q = `UPDATE slots SET sizes = $1 WHERE id = $2 AND sizes = $3;`
	ct, err := s.pool.Exec(ctx, q, new, id, old)
	if err != nil {
		return false, pgErr("swap slot sizes", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetSlotPost(ctx context.Context, id int64, channelID, messageID int64) error {
	const q = `UPDATE slots SET channel_id = $1, message_id = $2 WHERE id = $3;`
	ct, err := s.pool.Exec(ctx, q, channelID, messageID, id)
	if err != nil {
		return pgErr("set slot post", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set slot post %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteSlot(ctx context.Context, id int64) error {
	const q = `DELETE FROM slots WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return pgErr("delete slot", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delete slot %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ResetSlots(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `TRUNCATE slots RESTART IDENTITY;`)
		return err
	})
	if err != nil {
		return pgErr("reset slots", err)
	}
	return nil
}

// -- Orders --

func (s *PostgresStore) CreateOrder(ctx context.Context, userID int64, username string, slotID int64, size string) (*Order, error) {
	var order Order
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insertQ = `
INSERT INTO orders (user_id, username, slot_id, size, status)
VALUES ($1, $2, $3, $4, 'pending')
RETURNING id, user_id, username, slot_id, size, delivery, address, proof, status, created_at;
`
		row := tx.QueryRow(ctx, insertQ, userID, username, slotID, size)
		if err := row.Scan(&order.ID, &order.UserID, &order.Username, &order.SlotID, &order.Size, &order.Delivery, &order.Address, &order.Proof, &order.Status, &order.CreatedAt); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, `UPDATE users SET active_slots = active_slots + 1 WHERE id = $1;`, userID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, pgErr("create order", err)
	}
	return &order, nil
}

const pgOrderDetailColumns = `
o.id, o.user_id, o.username, o.slot_id, o.size, o.delivery, o.address, o.proof, o.status, o.created_at,
s.name, s.price
`

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*OrderDetail, error) {
	q := `
SELECT ` + pgOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
WHERE o.id = $1
LIMIT 1;
`
	row := s.pool.QueryRow(ctx, q, id)
	detail, err := scanPgOrderDetail(row.Scan)
	if err != nil {
		return nil, pgErr("get order", err)
	}
	return detail, nil
}

func (s *PostgresStore) TransitionOrder(ctx context.Context, id int64, from []string, next string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition order: empty precondition")
	}
	placeholders := make([]string, len(from))
	args := make([]any, 0, len(from)+2)
	args = append(args, next, id)
	for i, st := range from {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, st)
	}
	q := `UPDATE orders SET status = $1 WHERE id = $2 AND status IN (` + strings.Join(placeholders, ",") + `);`

	ct, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return false, pgErr("transition order", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) CompleteOrder(ctx context.Context, id int64, from []string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("complete order: empty precondition")
	}
	placeholders := make([]string, len(from))
	args := make([]any, 0, len(from)+1)
	args = append(args, id)
	for i, st := range from {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, st)
	}
	q := `UPDATE orders SET status = 'completed' WHERE id = $1 AND status IN (` + strings.Join(placeholders, ",") + `) RETURNING user_id;`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var userID int64
		if err := tx.QueryRow(ctx, q, args...).Scan(&userID); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `UPDATE users SET active_slots = GREATEST(active_slots - 1, 0), buyer = TRUE WHERE id = $1;`, userID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pgErr("complete order", err)
	}
	return true, nil
}

func (s *PostgresStore) SetOrderProof(ctx context.Context, id int64, proof string) error {
	const q = `UPDATE orders SET proof = $1 WHERE id = $2;`
	return s.updateOrderField(ctx, "set order proof", q, proof, id)
}

func (s *PostgresStore) SetOrderDelivery(ctx context.Context, id int64, delivery string) error {
	const q = `UPDATE orders SET delivery = $1 WHERE id = $2;`
	return s.updateOrderField(ctx, "set order delivery", q, delivery, id)
}

func (s *PostgresStore) SetOrderAddress(ctx context.Context, id int64, address string) error {
	const q = `UPDATE orders SET address = $1 WHERE id = $2;`
	return s.updateOrderField(ctx, "set order address", q, address, id)
}

func (s *PostgresStore) ClearOrderDelivery(ctx context.Context, id int64) error {
	const q = `UPDATE orders SET delivery = NULL, address = NULL WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return pgErr("clear order delivery", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("clear order delivery %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) updateOrderField(ctx context.Context, op, q string, value any, id int64) error {
	ct, err := s.pool.Exec(ctx, q, value, id)
	if err != nil {
		return pgErr(op, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListUserOrders(ctx context.Context, userID int64) ([]OrderDetail, error) {
	q := `
SELECT ` + pgOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
WHERE o.user_id = $1
ORDER BY o.created_at DESC, o.id DESC;
`
	return s.queryOrderDetails(ctx, q, userID)
}

func (s *PostgresStore) ListActiveOrders(ctx context.Context) ([]OrderDetail, error) {
	q := `
SELECT ` + pgOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
WHERE o.status IN ('paid', 'processing', 'shipped')
ORDER BY o.created_at DESC, o.id DESC;
`
	return s.queryOrderDetails(ctx, q)
}

func (s *PostgresStore) ListOrderHistory(ctx context.Context) ([]OrderDetail, error) {
	q := `
SELECT ` + pgOrderDetailColumns + `
FROM orders o
LEFT JOIN slots s ON o.slot_id = s.id
ORDER BY o.created_at DESC, o.id DESC;
`
	return s.queryOrderDetails(ctx, q)
}

func (s *PostgresStore) queryOrderDetails(ctx context.Context, q string, args ...any) ([]OrderDetail, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, pgErr("list orders", err)
	}
	defer rows.Close()

	var details []OrderDetail
	for rows.Next() {
		detail, err := scanPgOrderDetail(rows.Scan)
		if err != nil {
			return nil, pgErr("scan order", err)
		}
		details = append(details, *detail)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr("iterate orders", err)
	}
	return details, nil
}

func scanPgOrderDetail(scan func(...any) error) (*OrderDetail, error) {
	var d OrderDetail
	var slotName, slotPrice *string
	if err := scan(
		&d.ID, &d.UserID, &d.Username, &d.SlotID, &d.Size, &d.Delivery, &d.Address, &d.Proof, &d.Status, &d.CreatedAt,
		&slotName, &slotPrice,
	); err != nil {
		return nil, err
	}
	d.SlotName = DeletedSlotName
	if slotName != nil {
		d.SlotName = *slotName
	}
	if slotPrice != nil {
		d.SlotPrice = *slotPrice
	}
	return &d, nil
}
