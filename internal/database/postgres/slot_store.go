package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/repository"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/jackc/pgx/v5"
)

var _ repository.SlotStore = (*Client)(nil)

const (
	slotColumns = `id, instructor_id, day_of_week, start_time, end_time, booking_status,
		booked_course_id, booked_course_name, created_at, updated_at`

	bookingColumns = `id, student_id, instructor_id, course_id, time_slot_id, scheduled_date,
		action, status, created_at, updated_at`
)

// CreateSlot inserts a slot after check accepted the instructor's existing slots.
// A transaction-scoped advisory lock on the instructor serializes concurrent creations.
func (c *Client) CreateSlot(ctx context.Context, slot *models.TimeSlot, check repository.SlotCheck) error {
	return c.inTx(ctx, "createSlot", pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "slots:"+slot.InstructorID); err != nil {
			return fmt.Errorf("failed to lock instructor slots: %w", err)
		}

		existing, err := listSlots(ctx, tx, slot.InstructorID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO time_slots (`+slotColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			slot.ID, slot.InstructorID, slot.DayOfWeek, string(slot.StartTime), string(slot.EndTime),
			string(slot.BookingStatus), slot.BookedCourseID, slot.BookedCourseName, slot.CreatedAt, slot.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert slot: %w", err)
		}
		return nil
	})
}

// GetSlot returns a committed snapshot of the aggregate
func (c *Client) GetSlot(ctx context.Context, slotID string) (*models.SlotAggregate, error) {
	var agg *models.SlotAggregate
	err := c.inTx(ctx, "getSlot", readSnapshot, func(tx pgx.Tx) error {
		var err error
		agg, err = loadSlotAggregate(ctx, tx, slotID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// SlotIDForBooking resolves the immutable slot of a booking
func (c *Client) SlotIDForBooking(ctx context.Context, bookingID string) (string, error) {
	var slotID string
	err := c.inTx(ctx, "slotIdForBooking", readSnapshot, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT time_slot_id FROM bookings WHERE id = $1`, bookingID).Scan(&slotID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFoundError("booking", bookingID)
		}
		if err != nil {
			return fmt.Errorf("failed to look up booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return slotID, nil
}

// UpdateSlot locks the slot row, runs fn on the loaded aggregate and writes back the diff
func (c *Client) UpdateSlot(ctx context.Context, slotID string, fn repository.SlotMutation) (*models.SlotAggregate, error) {
	var result *models.SlotAggregate
	err := c.inTx(ctx, "updateSlot", pgx.TxOptions{}, func(tx pgx.Tx) error {
		agg, err := loadSlotAggregate(ctx, tx, slotID, true)
		if err != nil {
			return err
		}
		before := agg.Clone()

		if err := fn(agg); err != nil {
			return err
		}
		if err := saveSlotAggregate(ctx, tx, before, agg); err != nil {
			return err
		}
		result = agg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListSlotsByInstructor returns an instructor's slots ordered by day and start time
func (c *Client) ListSlotsByInstructor(ctx context.Context, instructorID string) ([]*models.TimeSlot, error) {
	var out []*models.TimeSlot
	err := c.inTx(ctx, "listSlotsByInstructor", readSnapshot, func(tx pgx.Tx) error {
		var err error
		out, err = listSlots(ctx, tx, instructorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountSlotsByStatus returns the number of slots in each booking status
func (c *Client) CountSlotsByStatus(ctx context.Context) (map[models.SlotStatus]int, error) {
	counts := make(map[models.SlotStatus]int, 2)
	err := c.inTx(ctx, "countSlotsByStatus", readSnapshot, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT booking_status, COUNT(*) FROM time_slots GROUP BY booking_status`)
		if err != nil {
			return fmt.Errorf("failed to count slots: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return fmt.Errorf("failed to scan slot count: %w", err)
			}
			counts[models.SlotStatus(status)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func listSlots(ctx context.Context, q querier, instructorID string) ([]*models.TimeSlot, error) {
	rows, err := q.Query(ctx,
		`SELECT `+slotColumns+` FROM time_slots WHERE instructor_id = $1 ORDER BY day_of_week, start_time, id`,
		instructorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	out := []*models.TimeSlot{}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func loadSlotAggregate(ctx context.Context, q querier, slotID string, forUpdate bool) (*models.SlotAggregate, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	slot, err := scanSlot(q.QueryRow(ctx, query, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundError("slot", slotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE time_slot_id = $1 ORDER BY created_at, id`,
		slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		var (
			b                    models.Booking
			date, action, status string
		)
		err := rows.Scan(
			&b.ID, &b.StudentID, &b.InstructorID, &b.CourseID, &b.TimeSlotID, &date,
			&action, &status, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		b.ScheduledDate = models.Date(date)
		b.Action = models.ActionKind(action)
		b.Status = models.BookingStatus(status)
		bookings = append(bookings, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.SlotAggregate{Slot: slot, Bookings: bookings}, nil
}

func saveSlotAggregate(ctx context.Context, tx pgx.Tx, before, after *models.SlotAggregate) error {
	slot := after.Slot
	_, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET booking_status = $2, booked_course_id = $3, booked_course_name = $4, updated_at = $5
		WHERE id = $1`,
		slot.ID, string(slot.BookingStatus), slot.BookedCourseID, slot.BookedCourseName, slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}

	for _, b := range after.Bookings {
		prev := before.Booking(b.ID)
		switch {
		case prev == nil:
			_, err = tx.Exec(ctx, `
				INSERT INTO bookings (`+bookingColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				b.ID, b.StudentID, b.InstructorID, b.CourseID, b.TimeSlotID, string(b.ScheduledDate),
				string(b.Action), string(b.Status), b.CreatedAt, b.UpdatedAt,
			)
		case prev.Status != b.Status || !prev.UpdatedAt.Equal(b.UpdatedAt):
			_, err = tx.Exec(ctx,
				`UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
				b.ID, string(b.Status), b.UpdatedAt)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to write booking %s: %w", b.ID, err)
		}
	}
	return nil
}

func scanSlot(row pgx.Row) (*models.TimeSlot, error) {
	var (
		slot               models.TimeSlot
		start, end, status string
	)
	err := row.Scan(
		&slot.ID, &slot.InstructorID, &slot.DayOfWeek, &start, &end, &status,
		&slot.BookedCourseID, &slot.BookedCourseName, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	slot.StartTime = models.TimeOfDay(start)
	slot.EndTime = models.TimeOfDay(end)
	slot.BookingStatus = models.SlotStatus(status)
	return &slot, nil
}
