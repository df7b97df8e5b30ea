package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"storefront/internal/cart"
	"storefront/internal/models"

	"github.com/google/uuid"
)

// TermsPrompt is shown when an order is placed without accepting the terms.
const TermsPrompt = "Please agree to the terms and conditions"

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrUnavailableItems   = errors.New("cart contains unavailable items")
	ErrGuestEmailRequired = errors.New("guest email is required")
	ErrTermsNotAccepted   = errors.New("terms and conditions not accepted")
	ErrSubmissionInFlight = errors.New("order submission already in progress")
	ErrWrongStep          = errors.New("action not allowed at the current step")
	ErrCannotEditForward  = errors.New("can only return to an earlier step")
	ErrOrderPlaced        = errors.New("order already placed for this checkout")
)

// Step is a stage of the checkout flow
type Step int

const (
	StepShipping Step = iota + 1
	StepPayment
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// ParseStep converts a step name back into a Step.
func ParseStep(name string) (Step, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "shipping":
		return StepShipping, nil
	case "payment":
		return StepPayment, nil
	case "review":
		return StepReview, nil
	}
	return 0, fmt.Errorf("unknown checkout step %q", name)
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Viewer describes who is checking out
type Viewer struct {
	Authenticated bool
	UserID        string
	Email         string
	GuestEmail    string
}

// Cart is the view of the cart store the sequencer needs
type Cart interface {
	Snapshot() cart.Snapshot
	Settle(ordered cart.Snapshot)
}

// Submission is everything the order submitter needs to place an order
type Submission struct {
	SessionID      string
	UserID         string
	Email          string
	Shipping       models.ShippingAddress
	Payment        models.PaymentMethod
	Items          []models.LineItem
	Promo          models.PromoState
	Totals         models.CartTotals
	IdempotencyKey string
}

// Submitter places orders
type Submitter interface {
	PlaceOrder(ctx context.Context, sub Submission) (*models.Order, error)
}

// SubmitterFunc adapts a function to Submitter
type SubmitterFunc func(ctx context.Context, sub Submission) (*models.Order, error)

func (f SubmitterFunc) PlaceOrder(ctx context.Context, sub Submission) (*models.Order, error) {
	return f(ctx, sub)
}

// State is a read-only view of a sequencer
type State struct {
	Step       Step                   `json:"step"`
	Email      string                 `json:"email"`
	Shipping   models.ShippingAddress `json:"shipping"`
	Payment    *models.PaymentSummary `json:"payment,omitempty"`
	Processing bool                   `json:"processing"`
	OrderID    string                 `json:"order_id,omitempty"`
}

// Sequencer drives one checkout from shipping to a placed order
type Sequencer struct {
	mu             sync.Mutex
	sessionID      string
	userID         string
	email          string
	cart           Cart
	step           Step
	shipping       models.ShippingAddress
	payment        models.PaymentMethod
	paymentSet     bool
	processing     bool
	idempotencyKey string
	order          *models.Order
}

// Enter opens checkout for a cart. The cart must be non-empty with every item
// available, and anonymous viewers must supply a well-formed guest email.
func Enter(sessionID string, c Cart, viewer Viewer) (*Sequencer, error) {
	snap := c.Snapshot()
	if snap.Empty() {
		return nil, ErrEmptyCart
	}
	if len(snap.Unavailable()) > 0 {
		return nil, ErrUnavailableItems
	}

	email := strings.TrimSpace(viewer.Email)
	userID := ""
	if viewer.Authenticated {
		userID = viewer.UserID
	} else {
		guest := strings.TrimSpace(viewer.GuestEmail)
		if guest == "" {
			return nil, ErrGuestEmailRequired
		}
		if err := ValidateGuestEmail(guest); err != nil {
			return nil, err
		}
		email = guest
	}

	return &Sequencer{
		sessionID:      sessionID,
		userID:         userID,
		email:          email,
		cart:           c,
		step:           StepShipping,
		idempotencyKey: uuid.New().String(),
	}, nil
}

// Step returns the current step.
func (s *Sequencer) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// State returns a snapshot of the sequencer for display.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Step:       s.step,
		Email:      s.email,
		Shipping:   s.shipping,
		Processing: s.processing,
	}
	if s.paymentSet {
		summary := s.payment.Summary()
		st.Payment = &summary
	}
	if s.order != nil {
		st.OrderID = s.order.OrderID
	}
	return st
}

// UseIdempotencyKey replaces the generated idempotency key, e.g. with one
// supplied by the client.
func (s *Sequencer) UseIdempotencyKey(key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotencyKey = key
}

// CompleteShipping validates the address and advances to payment.
func (s *Sequencer) CompleteShipping(addr models.ShippingAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(StepShipping); err != nil {
		return err
	}
	if err := ValidateShipping(addr); err != nil {
		return err
	}
	s.shipping = addr
	s.step = StepPayment
	return nil
}

// CompletePayment validates the payment method and advances to review.
func (s *Sequencer) CompletePayment(method models.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(StepPayment); err != nil {
		return err
	}
	if err := ValidatePayment(method); err != nil {
		return err
	}
	s.payment = method
	s.paymentSet = true
	s.step = StepReview
	return nil
}

// Edit returns to an earlier step without validation. Data already entered
// is kept.
func (s *Sequencer) Edit(step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	if step < StepShipping || step >= s.step {
		return fmt.Errorf("%w: %s from %s", ErrCannotEditForward, step, s.step)
	}
	s.step = step
	return nil
}

// PlaceOrder submits the order from the review step. Only one submission may
// be in flight; on failure the step and cart are left as they were. On
// success only the ordered lines leave the cart.
func (s *Sequencer) PlaceOrder(ctx context.Context, termsAccepted bool, submitter Submitter) (*models.Order, error) {
	s.mu.Lock()
	if err := s.editableLocked(StepReview); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !termsAccepted {
		s.mu.Unlock()
		return nil, ErrTermsNotAccepted
	}

	snap := s.cart.Snapshot()
	if snap.Empty() {
		s.mu.Unlock()
		return nil, ErrEmptyCart
	}
	if len(snap.Unavailable()) > 0 {
		s.mu.Unlock()
		return nil, ErrUnavailableItems
	}

	sub := Submission{
		SessionID:      s.sessionID,
		UserID:         s.userID,
		Email:          s.email,
		Shipping:       s.shipping,
		Payment:        s.payment,
		Items:          snap.Items,
		Promo:          snap.Promo,
		Totals:         snap.Totals,
		IdempotencyKey: s.idempotencyKey,
	}
	s.processing = true
	s.mu.Unlock()

	order, err := submitter.PlaceOrder(ctx, sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	if err != nil {
		return nil, err
	}

	s.order = order
	s.cart.Settle(snap)
	return order, nil
}

// Order returns the placed order, or nil before submission succeeds.
func (s *Sequencer) Order() *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

func (s *Sequencer) openLocked() error {
	if s.order != nil {
		return ErrOrderPlaced
	}
	if s.processing {
		return ErrSubmissionInFlight
	}
	return nil
}

func (s *Sequencer) editableLocked(want Step) error {
	if err := s.openLocked(); err != nil {
		return err
	}
	if s.step != want {
		return fmt.Errorf("%w: at %s, want %s", ErrWrongStep, s.step, want)
	}
	return nil
}
