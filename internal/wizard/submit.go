package wizard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/codec"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/retry"
)

type submitResult struct {
	item domain.CartItem
	err  error
}

// Submit records the reviewed booking in the cart. Steps run in order:
// session readiness, booking code, details, cart insert. Only after the cart
// confirms the item does the completion callback run and the form reset.
// Any earlier failure leaves the form on Review with every field intact.
//
// The pipeline runs under a watchdog. When it expires the form is released
// and apperr.ErrSubmitTimeout returned, but the booking code is kept so a
// retry deduplicates against a slow insert that still lands.
func (w *Wizard) Submit(ctx context.Context) (domain.CartItem, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return domain.CartItem{}, apperr.ErrSubmitInProgress
	}
	if w.step != domain.StepReview {
		w.mu.Unlock()
		return domain.CartItem{}, fmt.Errorf("%w: %w", apperr.ErrValidation, errNotOnReview)
	}
	w.submitting = true
	w.attempt++
	attempt := w.attempt
	form := w.draftLocked()
	w.mu.Unlock()

	w.drafts.Save(form)

	expired := make(chan struct{})
	watchdog := w.clk.AfterFunc(w.submitTimeout, func() { close(expired) })
	defer watchdog.Stop()

	done := make(chan submitResult, 1)
	go func() {
		item, err := w.runPipeline(ctx, attempt, form)
		done <- submitResult{item: item, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			w.fail(attempt, res.err)
			return domain.CartItem{}, res.err
		}
		w.complete(ctx, attempt, res.item)
		return res.item, nil

	case <-expired:
		w.abandon(attempt)
		w.logger.Warn("submission watchdog expired", zap.Duration("timeout", w.submitTimeout))
		return domain.CartItem{}, apperr.ErrSubmitTimeout

	case <-ctx.Done():
		w.abandon(attempt)
		return domain.CartItem{}, fmt.Errorf("submit: %w", ctx.Err())
	}
}

func (w *Wizard) runPipeline(ctx context.Context, attempt uint64, form domain.BookingDraft) (domain.CartItem, error) {
	user, err := w.awaitSession(ctx, attempt)
	if err != nil {
		return domain.CartItem{}, err
	}

	code := w.ensureBookingCode(attempt, form)
	if code == "" {
		return domain.CartItem{}, fmt.Errorf("submission attempt superseded")
	}

	item, err := w.buildItem(form, code)
	if err != nil {
		return domain.CartItem{}, err
	}

	stored, err := w.cart.Add(ctx, item)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("cart.Add: %w", err)
	}

	w.logger.Info("booking added to cart",
		zap.String("user_id", user.ID),
		zap.String("booking_code", code),
		zap.Stringer("price", stored.UnitPrice))
	return stored, nil
}

// awaitSession waits for the gate with the configured retry policy, showing
// the reconnecting state between attempts.
func (w *Wizard) awaitSession(ctx context.Context, attempt uint64) (domain.User, error) {
	defer w.setReconnecting(attempt, false)

	var user domain.User
	err := retry.Do(ctx, w.clk, w.sessionRetry,
		func(err error) bool { return errors.Is(err, apperr.ErrSessionNotReady) },
		func(n int, err error) {
			w.setReconnecting(attempt, true)
			w.logger.Info("session not ready, retrying", zap.Int("attempt", n), zap.Error(err))
		},
		func(ctx context.Context) error {
			if !w.session.IsReady() {
				if _, err := w.session.Resolve(ctx); err != nil {
					return fmt.Errorf("session.Resolve: %w", err)
				}
			}
			if !w.session.IsReady() {
				return apperr.ErrSessionNotReady
			}

			current := w.session.CurrentUser()
			if current == nil {
				return apperr.ErrUnauthenticated
			}
			user = *current
			return nil
		})
	if err != nil {
		return domain.User{}, err
	}

	return user, nil
}

// ensureBookingCode reuses the code of an abandoned attempt only for the
// same order. Any change to the order gets a fresh code so two distinct
// orders never share a dedup key.
func (w *Wizard) ensureBookingCode(attempt uint64, form domain.BookingDraft) string {
	order, err := orderFingerprint(form)
	if err != nil {
		w.logger.Warn("encode order, issuing a fresh booking code", zap.Error(err))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.attempt != attempt {
		return ""
	}
	if w.bookingCode == "" || order == nil || !bytes.Equal(order, w.codeOrder) {
		w.bookingCode = domain.NewBookingCode(w.variant.ItemType, w.clk.Now())
		w.codeOrder = order
	}
	return w.bookingCode
}

// orderFingerprint encodes what is being ordered, leaving out navigation and
// bookkeeping fields.
func orderFingerprint(form domain.BookingDraft) ([]byte, error) {
	order := form.Clone()
	order.Step = 0
	order.Timestamp = time.Time{}
	order.Submitting = false

	encoded, err := codec.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("codec.Marshal: %w", err)
	}
	return encoded, nil
}

func (w *Wizard) buildItem(form domain.BookingDraft, code string) (domain.CartItem, error) {
	details, err := buildDetails(w.variant, form, code)
	if err != nil {
		return domain.CartItem{}, err
	}

	raw, err := domain.EncodeDetails(details)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}

	serviceName := w.variant.ServiceName
	if serviceName == "" {
		serviceName = string(w.variant.ItemType) + " " + w.variant.Category
	}

	return domain.CartItem{
		ItemType:    w.variant.ItemType,
		ItemID:      code,
		ServiceName: serviceName,
		UnitPrice:   Price(w.variant.UnitPrice, form.DurationMode, form.Hours, form.StartDate, form.EndDate),
		Quantity:    1,
		Details:     raw,
		Status:      domain.ItemStatusPending,
	}, nil
}

func buildDetails(v Variant, form domain.BookingDraft, code string) (domain.Details, error) {
	fields := maps.Clone(form.Fields)
	if fields == nil {
		fields = make(map[string]string)
	}

	contact := domain.Contact{
		CustomerName: fields[FieldName],
		Email:        fields[FieldEmail],
		Phone:        normalizePhone(fields[FieldPhone]),
	}
	sched := domain.Schedule{
		DurationMode: form.DurationMode,
		StartDate:    form.StartDate,
		StartTime:    form.StartTime,
	}
	if form.DurationMode == domain.DurationHours {
		sched.Hours = form.Hours
	} else {
		sched.EndDate = form.EndDate
	}

	switch v.ItemType {
	case domain.ItemTypeBaggage:
		return domain.BaggageDetails{
			BookingCode:     code,
			Contact:         contact,
			Schedule:        sched,
			Category:        v.Category,
			FlightNumber:    fields[FieldFlightNumber],
			ItemDescription: fields[FieldItemDescription],
		}, nil
	case domain.ItemTypeAirportTransfer:
		return domain.TransferDetails{
			BookingCode:     code,
			Contact:         contact,
			Schedule:        sched,
			VehicleCategory: v.Category,
			PickupLocation:  fields[FieldPickupLocation],
			DropoffLocation: fields[FieldDropoffLocation],
		}, nil
	case domain.ItemTypeHandling:
		return domain.HandlingDetails{
			BookingCode:  code,
			Contact:      contact,
			Schedule:     sched,
			Category:     v.Category,
			FlightNumber: fields[FieldFlightNumber],
		}, nil
	case domain.ItemTypeCar:
		return domain.CarDetails{
			BookingCode: code,
			Contact:     contact,
			Schedule:    sched,
			Model:       v.Category,
		}, nil
	default:
		return nil, fmt.Errorf("item type[%s] is not valid", v.ItemType)
	}
}

// complete finishes a confirmed attempt: callback, draft invalidation, reset.
func (w *Wizard) complete(ctx context.Context, attempt uint64, item domain.CartItem) {
	w.mu.Lock()
	current := w.attempt == attempt
	w.mu.Unlock()
	if !current {
		return
	}

	if w.onComplete != nil {
		w.onComplete(item)
	}

	if err := w.drafts.Invalidate(ctx); err != nil {
		w.logger.Warn("invalidate draft after submit", zap.Error(err))
	}

	w.mu.Lock()
	w.resetLocked()
	w.mu.Unlock()
}

// fail releases the form after a definite failure. The booking code is
// discarded so the next attempt is a new order, and the draft is saved again
// without the in-flight flag.
func (w *Wizard) fail(attempt uint64, err error) {
	w.mu.Lock()
	if w.attempt != attempt {
		w.mu.Unlock()
		return
	}
	w.submitting = false
	w.reconnecting = false
	w.bookingCode = ""
	w.codeOrder = nil
	d := w.draftLocked()
	w.mu.Unlock()

	w.logger.Info("submission failed", zap.String("kind", apperr.Kind(err)), zap.Error(err))
	w.drafts.Save(d)
}

// abandon releases the form when the outcome is unknown. The booking code is
// kept for the retry.
func (w *Wizard) abandon(attempt uint64) {
	w.mu.Lock()
	if w.attempt != attempt {
		w.mu.Unlock()
		return
	}
	w.submitting = false
	w.reconnecting = false
	d := w.draftLocked()
	w.mu.Unlock()

	w.drafts.Save(d)
}

func (w *Wizard) setReconnecting(attempt uint64, reconnecting bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempt == attempt {
		w.reconnecting = reconnecting
	}
}
