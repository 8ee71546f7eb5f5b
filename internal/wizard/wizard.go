// Package wizard is the state machine behind a multi-step booking form:
// contact details, duration, review, then a single submission into the cart.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/retry"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

// Variant is the product a form books, e.g. large baggage storage.
type Variant struct {
	ItemType    domain.ItemType
	Category    string
	ServiceName string
	UnitPrice   domain.Money
	// RequiresDescription asks for a free-text item description on the
	// contact step.
	RequiresDescription bool
}

type Session interface {
	IsReady() bool
	CurrentUser() *domain.User
	Resolve(ctx context.Context) (domain.SessionState, error)
}

type Cart interface {
	Add(ctx context.Context, item domain.CartItem) (domain.CartItem, error)
}

type Drafts interface {
	Save(d domain.BookingDraft)
	Restore(ctx context.Context, category string) (*domain.BookingDraft, error)
	Invalidate(ctx context.Context) error
	Origin() string
}

type Options struct {
	Variant  Variant
	Session  Session
	Cart     Cart
	Drafts   Drafts
	Bus      *signal.Bus
	Clock    clock.Clock
	Location *time.Location
	Logger   *zap.Logger

	SessionRetry  retry.Policy
	SubmitTimeout time.Duration
	// OnComplete runs after the item reached the cart and before the form
	// is reset.
	OnComplete func(item domain.CartItem)
}

// State is a read-only view of the form.
type State struct {
	Step         domain.Step
	DurationMode domain.DurationMode
	Hours        int
	StartDate    string
	StartTime    string
	EndDate      string
	Fields       map[string]string
	Submitting   bool
	Reconnecting bool
	Price        domain.Money
}

type Wizard struct {
	variant       Variant
	session       Session
	cart          Cart
	drafts        Drafts
	bus           *signal.Bus
	clk           clock.Clock
	loc           *time.Location
	logger        *zap.Logger
	sessionRetry  retry.Policy
	submitTimeout time.Duration
	onComplete    func(domain.CartItem)

	mu           sync.Mutex
	step         domain.Step
	mode         domain.DurationMode
	hours        int
	startDate    string
	startTime    string
	endDate      string
	fields       map[string]string
	submitting   bool
	reconnecting bool
	bookingCode  string
	// codeOrder is the encoded order the booking code was issued for.
	codeOrder []byte
	attempt   uint64
}

func New(opts Options) (*Wizard, error) {
	if _, err := domain.ParseItemType(string(opts.Variant.ItemType)); err != nil {
		return nil, fmt.Errorf("domain.ParseItemType: %w", err)
	}
	if opts.Variant.Category == "" {
		return nil, fmt.Errorf("variant category is empty")
	}
	if opts.Session == nil || opts.Cart == nil || opts.Drafts == nil {
		return nil, fmt.Errorf("session, cart and drafts are required")
	}
	if opts.SubmitTimeout <= 0 {
		return nil, fmt.Errorf("submit timeout[%s] must be positive", opts.SubmitTimeout)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	w := &Wizard{
		variant:       opts.Variant,
		session:       opts.Session,
		cart:          opts.Cart,
		drafts:        opts.Drafts,
		bus:           opts.Bus,
		clk:           opts.Clock,
		loc:           opts.Location,
		logger:        opts.Logger.Named("wizard").With(zap.String("item_type", string(opts.Variant.ItemType)), zap.String("category", opts.Variant.Category)),
		sessionRetry:  opts.SessionRetry,
		submitTimeout: opts.SubmitTimeout,
		onComplete:    opts.OnComplete,
	}
	w.resetLocked()
	return w, nil
}

// Restore applies a saved draft at mount time. It reports whether one was
// applied.
func (w *Wizard) Restore(ctx context.Context) (bool, error) {
	d, err := w.drafts.Restore(ctx, w.variant.Category)
	if err != nil {
		return false, fmt.Errorf("drafts.Restore: %w", err)
	}
	if d == nil {
		return false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.step = d.Step
	w.mode = d.DurationMode
	if w.mode == "" {
		w.mode = domain.DurationHours
	}
	w.hours = d.Hours
	w.startDate = d.StartDate
	w.startTime = d.StartTime
	w.endDate = d.EndDate
	w.fields = maps.Clone(d.Fields)
	if w.fields == nil {
		w.fields = make(map[string]string)
	}

	w.logger.Debug("draft restored", zap.Stringer("step", w.step))
	return true, nil
}

// Watch resets the form when another owner clears the same booking form or
// checkout completes. A reset never interrupts a submission in flight.
func (w *Wizard) Watch() (cancel func()) {
	if w.bus == nil {
		return func() {}
	}

	cancelCleared := w.bus.Subscribe(signal.BookingFormCleared, func(e signal.Event) {
		if e.Origin == w.drafts.Origin() || e.Scope != string(w.variant.ItemType) {
			return
		}
		w.resetIfIdle("booking form cleared elsewhere")
	})
	cancelCheckout := w.bus.Subscribe(signal.CheckoutCompleted, func(signal.Event) {
		w.resetIfIdle("checkout completed")
	})

	return func() {
		cancelCleared()
		cancelCheckout()
	}
}

func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return State{
		Step:         w.step,
		DurationMode: w.mode,
		Hours:        w.hours,
		StartDate:    w.startDate,
		StartTime:    w.startTime,
		EndDate:      w.endDate,
		Fields:       maps.Clone(w.fields),
		Submitting:   w.submitting,
		Reconnecting: w.reconnecting,
		Price:        w.priceLocked(),
	}
}

func (w *Wizard) Step() domain.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Reconnecting is true while a submission waits for the session gate.
func (w *Wizard) Reconnecting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reconnecting
}

// Price is recomputed from the current inputs on every call.
func (w *Wizard) Price() domain.Money {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.priceLocked()
}

func (w *Wizard) SetField(name, value string) error {
	return w.edit(func() { w.fields[name] = value })
}

func (w *Wizard) SetDurationMode(mode domain.DurationMode) error {
	if mode != domain.DurationHours && mode != domain.DurationDays {
		return fmt.Errorf("%w: duration mode[%s] is not valid", apperr.ErrValidation, mode)
	}
	return w.edit(func() { w.mode = mode })
}

func (w *Wizard) SetHours(hours int) error {
	return w.edit(func() { w.hours = hours })
}

func (w *Wizard) SetStart(date, clockTime string) error {
	return w.edit(func() {
		w.startDate = date
		w.startTime = clockTime
	})
}

func (w *Wizard) SetEndDate(date string) error {
	return w.edit(func() { w.endDate = date })
}

// Next validates the current step and moves forward. Review is left only
// through Submit.
func (w *Wizard) Next() error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}

	var err error
	switch w.step {
	case domain.StepPersonalInfo:
		err = validatePersonalInfo(w.variant, w.fields)
	case domain.StepDurationSelection:
		err = validateDuration(w.scheduleLocked(), w.clk.Now().In(w.loc))
	default:
		w.mu.Unlock()
		return nil
	}
	if err != nil {
		w.mu.Unlock()
		return err
	}

	w.step++
	d := w.draftLocked()
	w.mu.Unlock()

	w.drafts.Save(d)
	return nil
}

// Back moves one step backwards. It never leaves PersonalInfo.
func (w *Wizard) Back() error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.step <= domain.StepPersonalInfo || w.step >= domain.StepSubmitted {
		w.mu.Unlock()
		return nil
	}

	w.step--
	d := w.draftLocked()
	w.mu.Unlock()

	w.drafts.Save(d)
	return nil
}

// Reset returns the form to an empty PersonalInfo step and discards the
// saved draft.
func (w *Wizard) Reset(ctx context.Context) error {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return apperr.ErrSubmitInProgress
	}
	w.resetLocked()
	w.mu.Unlock()

	return w.drafts.Invalidate(ctx)
}

func (w *Wizard) edit(apply func()) error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	apply()
	d := w.draftLocked()
	w.mu.Unlock()

	w.drafts.Save(d)
	return nil
}

// editableLocked rejects input until the session is known and while a
// submission is in flight.
func (w *Wizard) editableLocked() error {
	if w.submitting {
		return apperr.ErrSubmitInProgress
	}
	if !w.session.IsReady() {
		return apperr.ErrSessionNotReady
	}
	return nil
}

func (w *Wizard) resetIfIdle(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return
	}
	w.resetLocked()
	w.logger.Debug("form reset", zap.String("reason", reason))
}

func (w *Wizard) resetLocked() {
	w.step = domain.StepPersonalInfo
	w.mode = domain.DurationHours
	w.hours = 0
	w.startDate = ""
	w.startTime = ""
	w.endDate = ""
	w.fields = make(map[string]string)
	w.submitting = false
	w.reconnecting = false
	w.bookingCode = ""
	w.codeOrder = nil
}

func (w *Wizard) priceLocked() domain.Money {
	return Price(w.variant.UnitPrice, w.mode, w.hours, w.startDate, w.endDate)
}

func (w *Wizard) scheduleLocked() schedule {
	return schedule{
		Mode:      w.mode,
		Hours:     w.hours,
		StartDate: w.startDate,
		StartTime: w.startTime,
		EndDate:   w.endDate,
	}
}

func (w *Wizard) draftLocked() domain.BookingDraft {
	return domain.BookingDraft{
		Step:         w.step,
		DurationMode: w.mode,
		Hours:        w.hours,
		StartDate:    w.startDate,
		StartTime:    w.startTime,
		EndDate:      w.endDate,
		Fields:       maps.Clone(w.fields),
		Category:     w.variant.Category,
		Timestamp:    w.clk.Now(),
		Submitting:   w.submitting,
	}
}

var errNotOnReview = errors.New("form is not on the review step")
