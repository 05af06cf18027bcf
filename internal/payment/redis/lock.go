package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-registration/internal/logger"
)

const (
	checkoutLockPrefix = "checkout_lock:"
	stripeEventPrefix  = "stripe_event:"
)

// Redis holds the short-lived payment keys: one checkout lock per
// registration and a processed marker per Stripe event id.
type Redis struct {
	Client   *redis.Client
	LockTTL  time.Duration
	EventTTL time.Duration
	Logger   *logger.Logger
}

func NewRedis(client *redis.Client, lockTTL, eventTTL time.Duration, log *logger.Logger) *Redis {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	if eventTTL <= 0 {
		eventTTL = 72 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{Client: client, LockTTL: lockTTL, EventTTL: eventTTL, Logger: log}
}

// CheckCheckoutAvailability reports whether no checkout is in flight for the
// registration, without taking the lock.
func (r *Redis) CheckCheckoutAvailability(ctx context.Context, registrationID string) (bool, error) {
	_, err := r.Client.Get(ctx, checkoutLockPrefix+registrationID).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// LockCheckout takes the checkout lock for a registration on behalf of owner.
func (r *Redis) LockCheckout(ctx context.Context, registrationID, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, checkoutLockPrefix+registrationID, owner, r.LockTTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		r.Logger.Warn("REDIS", fmt.Sprintf("Checkout lock for registration %s already held", registrationID))
	}
	return ok, nil
}

// UnlockCheckout releases the lock only if owner still holds it.
func (r *Redis) UnlockCheckout(ctx context.Context, registrationID, owner string) error {
	key := checkoutLockPrefix + registrationID
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == owner {
		return r.Client.Del(ctx, key).Err()
	}
	return nil
}

// MarkEventProcessed claims a Stripe event id. False means another delivery
// already claimed it.
func (r *Redis) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return r.Client.SetNX(ctx, stripeEventPrefix+eventID, time.Now().UTC().Format(time.RFC3339), r.EventTTL).Result()
}

// ForgetEvent drops the claim so Stripe's retry of a failed delivery is
// processed again.
func (r *Redis) ForgetEvent(ctx context.Context, eventID string) error {
	return r.Client.Del(ctx, stripeEventPrefix+eventID).Err()
}
