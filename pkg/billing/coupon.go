package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Coupon describes a discount. PercentOff and AmountOff are mutually
// exclusive in practice; AmountOff is in the currency's minor unit.
type Coupon struct {
	ID                string   `json:"id"`
	Name              string   `json:"name,omitempty"`
	PercentOff        float64  `json:"percentOff,omitempty"`
	AmountOff         int64    `json:"amountOff,omitempty"`
	Currency          string   `json:"currency,omitempty"`
	Duration          string   `json:"duration,omitempty"`
	PromotionCode     string   `json:"promotionCode,omitempty"`
	Valid             bool     `json:"-"`
	AppliesToProducts []string `json:"-"`
}

// Label renders the discount for display, e.g. "20% off" or "$5.00 off".
func (c *Coupon) Label() string {
	switch {
	case c.PercentOff > 0:
		return strconv.FormatFloat(c.PercentOff, 'f', -1, 64) + "% off"
	case c.AmountOff > 0:
		unit, err := currency.ParseISO(strings.ToUpper(c.Currency))
		if err != nil {
			return fmt.Sprintf("%d %s off", c.AmountOff, strings.ToUpper(c.Currency))
		}
		scale, _ := currency.Standard.Rounding(unit)
		amount := float64(c.AmountOff) / math.Pow10(scale)
		p := message.NewPrinter(language.English)
		return p.Sprintf("%v off", currency.Symbol(unit.Amount(amount)))
	}
	return c.Name
}

// CouponValidator resolves user-typed codes into applicable coupons.
// It never mutates processor state.
type CouponValidator struct {
	processor Processor
	catalog   *Catalog
	opts      options
}

// NewCouponValidator panics if processor or catalog is nil.
func NewCouponValidator(processor Processor, catalog *Catalog, opts ...Option) *CouponValidator {
	if processor == nil {
		panic("billing: Processor is required")
	}
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	return &CouponValidator{processor: processor, catalog: catalog, opts: newOptions(opts)}
}

// Validate resolves code, first as an active promotion code and then as a
// coupon id, and checks it applies to plan (the default plan when empty).
// Unresolvable codes and product mismatches both satisfy
// errors.Is(err, ErrInvalidCoupon).
func (v *CouponValidator) Validate(ctx context.Context, code, plan string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}
	ctx, cancel := v.opts.bound(ctx)
	defer cancel()

	coupon, err := v.resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	if len(coupon.AppliesToProducts) > 0 {
		p, err := v.catalog.Resolve(plan)
		if err != nil {
			return nil, err
		}
		product, err := v.processor.GetPriceProduct(ctx, p.PriceID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(coupon.AppliesToProducts, product) {
			v.opts.logger(ctx).InfoContext(ctx, "coupon rejected for plan",
				logger.Component("coupon_validator"),
				logger.CouponID(coupon.ID),
				logger.Plan(p.Key),
			)
			return nil, errors.Join(ErrInvalidCoupon, ErrCouponNotApplicable)
		}
	}

	return coupon, nil
}

func (v *CouponValidator) resolve(ctx context.Context, code string) (*Coupon, error) {
	promo, err := v.processor.FindPromotionCode(ctx, code)
	switch {
	case err == nil && promo.Active && promo.Coupon != nil && promo.Coupon.Valid:
		c := *promo.Coupon
		c.PromotionCode = promo.Code
		return &c, nil
	case err != nil && !errors.Is(err, ErrProcessorNotFound):
		return nil, err
	}

	coupon, err := v.processor.GetCoupon(ctx, code)
	switch {
	case errors.Is(err, ErrProcessorNotFound):
		return nil, ErrInvalidCoupon
	case err != nil:
		return nil, err
	case !coupon.Valid:
		return nil, ErrInvalidCoupon
	}
	return coupon, nil
}
