package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/BoweryJG/bowerycreativepayments/internal/domain"
)

// Outcomes the service layer switches on. The Apply* methods return
// ErrEventAlreadyProcessed, ErrStaleEvent and ErrSubscriptionNotFound *after*
// committing the processed-event marker: the event was handled, just with no
// effect, and a provider retry must short-circuit.
var (
	ErrEventAlreadyProcessed = errors.New("event already processed")
	ErrStaleEvent            = errors.New("event older than last applied state")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrCustomerNotFound      = errors.New("customer not found")
)

// BillingRepository is the persistence boundary for customers, subscriptions
// and the payment ledger. The Apply* methods run the webhook effects: each one
// inserts the processed-event marker and the state mutation in a single
// transaction, so a retry of the same event id can never double-apply.
type BillingRepository interface {
	CreateCustomer(ctx context.Context, c domain.Customer) (int64, error)
	GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*domain.Customer, error)
	SetStripeCustomerID(ctx context.Context, id int64, stripeCustomerID string) error

	ActiveSubscriptionForCustomer(ctx context.Context, customerID int64) (*domain.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)
	PaymentsForCustomer(ctx context.Context, customerID int64) ([]domain.Payment, error)

	ApplyCheckoutCompleted(ctx context.Context, eventID string, sub domain.Subscription) error
	ApplySubscriptionUpdated(ctx context.Context, eventID string, eventAt time.Time, sub domain.Subscription) error
	ApplySubscriptionDeleted(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error
	ApplyPaymentSucceeded(ctx context.Context, eventID, stripeCustomerID string, p domain.Payment) error
	ApplyPaymentFailed(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error
}

type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open database handle in the BillingRepository
// implementation used in production.
func NewSQLiteRepository(db *sql.DB) BillingRepository {
	return &sqliteRepository{db: db}
}

// --- customers ---

func (r *sqliteRepository) CreateCustomer(ctx context.Context, c domain.Customer) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO customers(name, email) VALUES(?, ?)", c.Name, c.Email)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const customerCols = "id, name, email, COALESCE(stripe_customer_id, ''), created_at"

func (r *sqliteRepository) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+customerCols+" FROM customers WHERE id = ?", id)
	return scanCustomer(row)
}

func (r *sqliteRepository) GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+customerCols+" FROM customers WHERE email = ?", email)
	return scanCustomer(row)
}

func (r *sqliteRepository) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+customerCols+" FROM customers WHERE stripe_customer_id = ?", stripeCustomerID)
	return scanCustomer(row)
}

func scanCustomer(row *sql.Row) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.StripeCustomerID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *sqliteRepository) SetStripeCustomerID(ctx context.Context, id int64, stripeCustomerID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE customers SET stripe_customer_id = ? WHERE id = ? AND stripe_customer_id IS NULL",
		stripeCustomerID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the customer doesn't exist or the mapping is already set;
		// the mapping is immutable once written.
		if _, err := r.GetCustomerByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// --- subscriptions / payments (reads) ---

const subscriptionCols = `id, customer_id, stripe_subscription_id, stripe_price_id, status,
	current_period_start, current_period_end, cancel_at_period_end, last_event_at, created_at, updated_at`

func (r *sqliteRepository) ActiveSubscriptionForCustomer(ctx context.Context, customerID int64) (*domain.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+subscriptionCols+" FROM subscriptions WHERE customer_id = ? AND status = ? ORDER BY id DESC LIMIT 1",
		customerID, domain.StatusActive)
	return scanSubscription(row)
}

func (r *sqliteRepository) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+subscriptionCols+" FROM subscriptions WHERE stripe_subscription_id = ?", stripeSubscriptionID)
	return scanSubscription(row)
}

func scanSubscription(row *sql.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	var lastEvent int64
	err := row.Scan(&s.ID, &s.CustomerID, &s.StripeSubscriptionID, &s.StripePriceID, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &lastEvent, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.LastEventAt = time.Unix(lastEvent, 0).UTC()
	return &s, nil
}

func (r *sqliteRepository) PaymentsForCustomer(ctx context.Context, customerID int64) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_id, stripe_payment_intent_id, stripe_invoice_id, amount, currency, status, description, created_at
		 FROM payments WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.StripePaymentIntentID, &p.StripeInvoiceID,
			&p.Amount, &p.Currency, &p.Status, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// --- webhook effects ---

// markProcessed inserts the idempotency marker inside tx. A primary-key
// conflict means a previous delivery of the same event already committed.
func markProcessed(ctx context.Context, tx *sql.Tx, eventID string) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO processed_events(stripe_event_id) VALUES(?)", eventID)
	if isUniqueViolation(err) {
		return ErrEventAlreadyProcessed
	}
	return err
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// apply runs fn inside a transaction. Stale-event and unknown-subscription
// outcomes still commit (the marker must stick so retries short-circuit) and
// are reported after the commit; any other error rolls everything back.
func (r *sqliteRepository) apply(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	outcome := fn(tx)
	switch {
	case outcome == nil,
		errors.Is(outcome, ErrStaleEvent),
		errors.Is(outcome, ErrSubscriptionNotFound):
		if err := tx.Commit(); err != nil {
			return err
		}
		return outcome
	default:
		tx.Rollback()
		return outcome
	}
}

func (r *sqliteRepository) ApplyCheckoutCompleted(ctx context.Context, eventID string, sub domain.Subscription) error {
	return r.apply(ctx, func(tx *sql.Tx) error {
		if err := markProcessed(ctx, tx, eventID); err != nil {
			return err
		}
		// A second checkout event referencing an existing subscription id is
		// a duplicate, not an error.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subscriptions
			   (customer_id, stripe_subscription_id, stripe_price_id, status,
			    current_period_start, current_period_end, cancel_at_period_end, last_event_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(stripe_subscription_id) DO NOTHING`,
			sub.CustomerID, sub.StripeSubscriptionID, sub.StripePriceID, sub.Status,
			sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC(), sub.CancelAtPeriodEnd,
			sub.LastEventAt.Unix())
		return err
	})
}

func (r *sqliteRepository) ApplySubscriptionUpdated(ctx context.Context, eventID string, eventAt time.Time, sub domain.Subscription) error {
	return r.apply(ctx, func(tx *sql.Tx) error {
		if err := markProcessed(ctx, tx, eventID); err != nil {
			return err
		}
		// Ordering guard: only apply if this event is newer than the last one
		// we applied, and never move a canceled subscription.
		res, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET status = ?, current_period_start = ?, current_period_end = ?,
			     cancel_at_period_end = ?, last_event_at = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE stripe_subscription_id = ? AND status <> ? AND last_event_at < ?`,
			sub.Status, sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC(),
			sub.CancelAtPeriodEnd, eventAt.Unix(),
			sub.StripeSubscriptionID, domain.StatusCanceled, eventAt.Unix())
		if err != nil {
			return err
		}
		return explainNoop(ctx, tx, res, sub.StripeSubscriptionID)
	})
}

func (r *sqliteRepository) ApplySubscriptionDeleted(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error {
	return r.apply(ctx, func(tx *sql.Tx) error {
		if err := markProcessed(ctx, tx, eventID); err != nil {
			return err
		}
		// Cancellation is terminal regardless of event ordering: a late
		// delete must still win over an earlier-arrived newer update.
		res, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET status = ?, last_event_at = MAX(last_event_at, ?), updated_at = CURRENT_TIMESTAMP
			 WHERE stripe_subscription_id = ?`,
			domain.StatusCanceled, eventAt.Unix(), stripeSubscriptionID)
		if err != nil {
			return err
		}
		return explainNoop(ctx, tx, res, stripeSubscriptionID)
	})
}

func (r *sqliteRepository) ApplyPaymentSucceeded(ctx context.Context, eventID, stripeCustomerID string, p domain.Payment) error {
	return r.apply(ctx, func(tx *sql.Tx) error {
		if err := markProcessed(ctx, tx, eventID); err != nil {
			return err
		}
		var customerID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM customers WHERE stripe_customer_id = ?", stripeCustomerID).Scan(&customerID)
		if err == sql.ErrNoRows {
			// Money we cannot attribute. Roll back, including the marker, so
			// the condition stays visible if the event ever comes back.
			return ErrCustomerNotFound
		}
		if err != nil {
			return err
		}
		// Ledger is append-only and keyed by payment intent; a duplicate
		// intent id from a distinct event id books nothing.
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payments
			   (customer_id, stripe_payment_intent_id, stripe_invoice_id, amount, currency, status, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(stripe_payment_intent_id) DO NOTHING`,
			customerID, p.StripePaymentIntentID, p.StripeInvoiceID, p.Amount, p.Currency, p.Status, p.Description)
		return err
	})
}

func (r *sqliteRepository) ApplyPaymentFailed(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error {
	return r.apply(ctx, func(tx *sql.Tx) error {
		if err := markProcessed(ctx, tx, eventID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET status = ?, last_event_at = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE stripe_subscription_id = ? AND status <> ? AND last_event_at < ?`,
			domain.StatusPastDue, eventAt.Unix(),
			stripeSubscriptionID, domain.StatusCanceled, eventAt.Unix())
		if err != nil {
			return err
		}
		return explainNoop(ctx, tx, res, stripeSubscriptionID)
	})
}

// explainNoop distinguishes "row missing" from "row newer than the event" when
// a guarded update matched nothing.
func explainNoop(ctx context.Context, tx *sql.Tx, res sql.Result, stripeSubscriptionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM subscriptions WHERE stripe_subscription_id = ?", stripeSubscriptionID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrSubscriptionNotFound
	}
	if err != nil {
		return err
	}
	return ErrStaleEvent
}
