package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

const customerLockTTL = 10 * time.Second

// Locker provides best-effort mutual exclusion across service instances.
// release must be safe to call once acquired is true.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// User is the authenticated account a billing operation acts for.
type User struct {
	ID    uuid.UUID
	Email string
}

// CustomerResolver maps users to processor customers, creating them on demand.
type CustomerResolver struct {
	processor Processor
	opts      options
}

// NewCustomerResolver panics if processor is nil.
func NewCustomerResolver(processor Processor, opts ...Option) *CustomerResolver {
	if processor == nil {
		panic("billing: Processor is required")
	}
	return &CustomerResolver{processor: processor, opts: newOptions(opts)}
}

// Resolve returns the processor customer id for user. An existing customer
// with the user's email is reused; otherwise one is created carrying the
// user id as metadata. Concurrent calls for the same email usually converge;
// a rare duplicate under lock failure is tolerated.
func (r *CustomerResolver) Resolve(ctx context.Context, user User) (string, error) {
	if user.ID == uuid.Nil || strings.TrimSpace(user.Email) == "" {
		return "", ErrInvalidUser
	}
	ctx, cancel := r.opts.bound(ctx)
	defer cancel()

	email := normalizeEmail(user.Email)
	log := r.opts.logger(ctx).With(logger.Component("customer_resolver"), logger.UserID(user.ID))

	if id, err := r.lookup(ctx, email); err != nil || id != "" {
		return id, err
	}

	if r.opts.locker != nil {
		release, acquired, err := r.opts.locker.TryLock(ctx, "billing:customer:"+email, customerLockTTL)
		switch {
		case err != nil:
			log.WarnContext(ctx, "customer lock unavailable, continuing without it", logger.Error(err))
		case !acquired:
			log.DebugContext(ctx, "customer creation in progress elsewhere")
			if id, err := r.waitForCustomer(ctx, email); err != nil || id != "" {
				return id, err
			}
		default:
			defer release()
			// Another instance may have created the customer between the first
			// lookup and lock acquisition.
			if id, err := r.lookup(ctx, email); err != nil || id != "" {
				return id, err
			}
		}
	}

	c, err := r.processor.CreateCustomer(ctx, CreateCustomerParams{Email: email, UserID: user.ID.String()})
	if err != nil {
		return "", err
	}
	log.InfoContext(ctx, "created processor customer", logger.CustomerID(c.ID))
	return c.ID, nil
}

// Owns reports whether customerID belongs to user, by metadata user id or
// by email when the customer predates metadata tagging.
func (r *CustomerResolver) Owns(ctx context.Context, customerID string, user User) error {
	if customerID == "" {
		return ErrMissingCustomerID
	}
	ctx, cancel := r.opts.bound(ctx)
	defer cancel()

	c, err := r.processor.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrProcessorNotFound) {
			return ErrForbidden
		}
		return err
	}
	if c.UserID != "" {
		if c.UserID == user.ID.String() {
			return nil
		}
		return ErrForbidden
	}
	if c.Email != "" && normalizeEmail(c.Email) == normalizeEmail(user.Email) {
		return nil
	}
	return ErrForbidden
}

// lookup returns an empty id and no error when no customer has the email.
func (r *CustomerResolver) lookup(ctx context.Context, email string) (string, error) {
	c, err := r.processor.FindCustomerByEmail(ctx, email)
	if errors.Is(err, ErrProcessorNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// waitForCustomer polls briefly for a customer being created by a lock holder.
func (r *CustomerResolver) waitForCustomer(ctx context.Context, email string) (string, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for range 8 {
		select {
		case <-ctx.Done():
			return "", errors.Join(ErrProcessorUnavailable, ctx.Err())
		case <-ticker.C:
		}
		if id, err := r.lookup(ctx, email); err != nil || id != "" {
			return id, err
		}
	}
	return "", nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
