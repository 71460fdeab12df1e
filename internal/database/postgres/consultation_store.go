package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/repository"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/jackc/pgx/v5"
)

var _ repository.ConsultationStore = (*Client)(nil)

const (
	requestColumns = `id, student_id, category, title, description, level, budget_min, budget_max,
		preferred_dates, preferred_times, status, offers_count, accepted_offer_id, created_at, updated_at`

	offerColumns = `id, request_id, instructor_id, message, offered_price, offered_date,
		offered_start_time, offered_end_time, status, created_at, updated_at`

	uqAcceptedOffer       = "uq_consultation_offers_accepted"
	uqPendingOfferPerUser = "uq_consultation_offers_pending_instructor"
)

// CreateRequest inserts a new request with no offers
func (c *Client) CreateRequest(ctx context.Context, req *models.ConsultationRequest) error {
	times, err := json.Marshal(req.PreferredTimes)
	if err != nil {
		return fmt.Errorf("failed to encode preferred times: %w", err)
	}

	return c.inTx(ctx, "createRequest", pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO consultation_requests (`+requestColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			req.ID, req.StudentID, req.Category, req.Title, req.Description, string(req.Level),
			req.BudgetMin, req.BudgetMax, datesToStrings(req.PreferredDates), string(times),
			string(req.Status), req.OffersCount, req.AcceptedOfferID, req.CreatedAt, req.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert request: %w", err)
		}
		return nil
	})
}

// GetRequest returns a committed snapshot of the aggregate
func (c *Client) GetRequest(ctx context.Context, requestID string) (*models.RequestAggregate, error) {
	var agg *models.RequestAggregate
	err := c.inTx(ctx, "getRequest", readSnapshot, func(tx pgx.Tx) error {
		var err error
		agg, err = loadRequestAggregate(ctx, tx, requestID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// RequestIDForOffer resolves the immutable parent of an offer
func (c *Client) RequestIDForOffer(ctx context.Context, offerID string) (string, error) {
	var requestID string
	err := c.inTx(ctx, "requestIdForOffer", readSnapshot, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT request_id FROM consultation_offers WHERE id = $1`, offerID).Scan(&requestID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFoundError("offer", offerID)
		}
		if err != nil {
			return fmt.Errorf("failed to look up offer: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return requestID, nil
}

// UpdateRequest locks the request row, runs fn on the loaded aggregate and writes back the diff
func (c *Client) UpdateRequest(ctx context.Context, requestID string, fn repository.RequestMutation) (*models.RequestAggregate, error) {
	var result *models.RequestAggregate
	err := c.inTx(ctx, "updateRequest", pgx.TxOptions{}, func(tx pgx.Tx) error {
		agg, err := loadRequestAggregate(ctx, tx, requestID, true)
		if err != nil {
			return err
		}
		before := agg.Clone()

		if err := fn(agg); err != nil {
			return err
		}
		if err := saveRequestAggregate(ctx, tx, before, agg); err != nil {
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

// ListRequests returns requests matching the filter, newest first
func (c *Client) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ConsultationRequest, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.StudentID != "" {
		add("student_id = $%d", filter.StudentID)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}

	query := `SELECT ` + requestColumns + ` FROM consultation_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var out []*models.ConsultationRequest
	err := c.inTx(ctx, "listRequests", readSnapshot, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query requests: %w", err)
		}
		out, err = collectRequests(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListOffersByInstructor returns all offers submitted by an instructor, newest first
func (c *Client) ListOffersByInstructor(ctx context.Context, instructorID string) ([]*models.ConsultationOffer, error) {
	var out []*models.ConsultationOffer
	err := c.inTx(ctx, "listOffersByInstructor", readSnapshot, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+offerColumns+` FROM consultation_offers WHERE instructor_id = $1 ORDER BY created_at DESC, id DESC`,
			instructorID)
		if err != nil {
			return fmt.Errorf("failed to query offers: %w", err)
		}
		out, err = collectOffers(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountRequestsByStatus returns the number of requests in each status
func (c *Client) CountRequestsByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	counts := make(map[models.RequestStatus]int, len(models.AllRequestStatuses))
	err := c.inTx(ctx, "countRequestsByStatus", readSnapshot, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT status, COUNT(*) FROM consultation_requests GROUP BY status`)
		if err != nil {
			return fmt.Errorf("failed to count requests: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return fmt.Errorf("failed to scan request count: %w", err)
			}
			counts[models.RequestStatus(status)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func loadRequestAggregate(ctx context.Context, q querier, requestID string, forUpdate bool) (*models.RequestAggregate, error) {
	query := `SELECT ` + requestColumns + ` FROM consultation_requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	req, err := scanRequest(q.QueryRow(ctx, query, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundError("request", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+offerColumns+` FROM consultation_offers WHERE request_id = $1 ORDER BY created_at, id`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load offers: %w", err)
	}
	offers, err := collectOffers(rows)
	if err != nil {
		return nil, err
	}

	return &models.RequestAggregate{Request: req, Offers: offers}, nil
}

// saveRequestAggregate writes the mutable request columns and every new or changed offer.
// Offers leaving pending are written before the rest so the partial unique indexes
// never see two accepted or two pending rows mid-transaction.
func saveRequestAggregate(ctx context.Context, tx pgx.Tx, before, after *models.RequestAggregate) error {
	req := after.Request
	if requestChanged(before.Request, req) {
		_, err := tx.Exec(ctx, `
			UPDATE consultation_requests
			SET status = $2, offers_count = $3, accepted_offer_id = $4, updated_at = $5
			WHERE id = $1`,
			req.ID, string(req.Status), req.OffersCount, req.AcceptedOfferID, req.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
	}

	var changed, inserted []*models.ConsultationOffer
	for _, o := range after.Offers {
		prev := before.Offer(o.ID)
		switch {
		case prev == nil:
			inserted = append(inserted, o)
		case prev.Status != o.Status || !prev.UpdatedAt.Equal(o.UpdatedAt):
			changed = append(changed, o)
		}
	}
	sort.SliceStable(changed, func(i, j int) bool {
		return changed[i].Status != models.OfferStatusAccepted && changed[j].Status == models.OfferStatusAccepted
	})

	for _, o := range changed {
		_, err := tx.Exec(ctx,
			`UPDATE consultation_offers SET status = $2, updated_at = $3 WHERE id = $1`,
			o.ID, string(o.Status), o.UpdatedAt)
		if err != nil {
			return mapOfferConstraint(err, o)
		}
	}

	for _, o := range inserted {
		_, err := tx.Exec(ctx, `
			INSERT INTO consultation_offers (`+offerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			o.ID, o.RequestID, o.InstructorID, o.Message, o.OfferedPrice, string(o.OfferedDate),
			string(o.OfferedStartTime), string(o.OfferedEndTime), string(o.Status), o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return mapOfferConstraint(err, o)
		}
	}
	return nil
}

// requestChanged reports whether any mutable request column differs
func requestChanged(before, after *models.ConsultationRequest) bool {
	sameAccepted := (before.AcceptedOfferID == nil) == (after.AcceptedOfferID == nil) &&
		(before.AcceptedOfferID == nil || *before.AcceptedOfferID == *after.AcceptedOfferID)
	return before.Status != after.Status ||
		before.OffersCount != after.OffersCount ||
		!sameAccepted ||
		!before.UpdatedAt.Equal(after.UpdatedAt)
}

// mapOfferConstraint translates a partial unique index failure into the matching domain error.
// The engine checks both rules first, so reaching here means another writer bypassed the row lock.
func mapOfferConstraint(err error, o *models.ConsultationOffer) error {
	switch {
	case isUniqueViolation(err, uqPendingOfferPerUser):
		return apperrors.DuplicateOfferError(o.RequestID, o.InstructorID, o.ID)
	case isUniqueViolation(err, uqAcceptedOffer):
		return apperrors.InvariantViolationError("request", o.RequestID, "second accepted offer "+o.ID)
	default:
		return fmt.Errorf("failed to write offer %s: %w", o.ID, err)
	}
}

func scanRequest(row pgx.Row) (*models.ConsultationRequest, error) {
	var (
		req    models.ConsultationRequest
		level  string
		status string
		dates  []string
		times  []byte
	)
	err := row.Scan(
		&req.ID, &req.StudentID, &req.Category, &req.Title, &req.Description, &level,
		&req.BudgetMin, &req.BudgetMax, &dates, &times, &status, &req.OffersCount,
		&req.AcceptedOfferID, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Level = models.Level(level)
	req.Status = models.RequestStatus(status)
	req.PreferredDates = make([]models.Date, 0, len(dates))
	for _, d := range dates {
		req.PreferredDates = append(req.PreferredDates, models.Date(d))
	}
	if err := json.Unmarshal(times, &req.PreferredTimes); err != nil {
		return nil, fmt.Errorf("failed to decode preferred times: %w", err)
	}
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]*models.ConsultationRequest, error) {
	defer rows.Close()
	out := []*models.ConsultationRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func collectOffers(rows pgx.Rows) ([]*models.ConsultationOffer, error) {
	defer rows.Close()
	out := []*models.ConsultationOffer{}
	for rows.Next() {
		var (
			o                            models.ConsultationOffer
			date, start, end, statusText string
		)
		err := rows.Scan(
			&o.ID, &o.RequestID, &o.InstructorID, &o.Message, &o.OfferedPrice, &date,
			&start, &end, &statusText, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		o.OfferedDate = models.Date(date)
		o.OfferedStartTime = models.TimeOfDay(start)
		o.OfferedEndTime = models.TimeOfDay(end)
		o.Status = models.OfferStatus(statusText)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func datesToStrings(dates []models.Date) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, string(d))
	}
	return out
}
