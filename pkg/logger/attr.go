package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under the key "error". A nil error yields an empty Attr,
// so it can be passed unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the local account identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// CustomerID records a processor customer id.
func CustomerID(id string) slog.Attr {
	return slog.String("customer_id", id)
}

// SubscriptionID records a processor subscription id.
func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

func PaymentMethodID(id string) slog.Attr {
	return slog.String("payment_method_id", id)
}

func CouponID(id string) slog.Attr {
	return slog.String("coupon_id", id)
}

func Plan(key string) slog.Attr {
	return slog.String("plan", key)
}

// EventID records a webhook event id under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// EventType records the webhook event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Outcome records how an operation or event was resolved.
func Outcome(outcome string) slog.Attr {
	return slog.String("outcome", outcome)
}

func Time(key string, t time.Time) slog.Attr {
	return slog.Time(key, t)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
