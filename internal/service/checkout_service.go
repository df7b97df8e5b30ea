package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

var ErrNoCheckout = errors.New("no checkout in progress")

const defaultLockTTL = 30 * time.Second

// Viewers resolves who is signed in on a session
type Viewers interface {
	CurrentUser(ctx context.Context, sessionID string) (*identity.User, error)
}

// CheckoutService keeps one sequencer per session and routes the checkout
// steps to it.
type CheckoutService struct {
	mu        sync.Mutex
	sessions  map[string]*checkout.Sequencer
	carts     *CartService
	viewers   Viewers
	submitter checkout.Submitter
	locks     SessionState
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. lockTTL bounds how long
// a crashed submission can hold the session lock.
func NewCheckoutService(carts *CartService, viewers Viewers, submitter checkout.Submitter, locks SessionState, lockTTL time.Duration) *CheckoutService {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &CheckoutService{
		sessions:  make(map[string]*checkout.Sequencer),
		carts:     carts,
		viewers:   viewers,
		submitter: submitter,
		locks:     locks,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// Enter starts a fresh checkout for the session's cart, replacing any
// earlier one.
func (s *CheckoutService) Enter(ctx context.Context, sessionID, guestEmail string) (checkout.State, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Enter")
	defer span.End()

	c, err := s.carts.Cart(ctx, sessionID)
	if err != nil {
		return checkout.State{}, err
	}

	viewer := checkout.Viewer{GuestEmail: guestEmail}
	user, err := s.viewers.CurrentUser(ctx, sessionID)
	if err != nil {
		return checkout.State{}, err
	}
	if user != nil {
		viewer.Authenticated = true
		viewer.UserID = user.ID
		viewer.Email = user.Email
	}

	seq, err := checkout.Enter(sessionID, c, viewer)
	if err != nil {
		util.CheckoutStepTransitionsTotal.WithLabelValues("enter", "rejected").Inc()
		return checkout.State{}, err
	}

	s.mu.Lock()
	s.sessions[sessionID] = seq
	s.mu.Unlock()

	util.CheckoutStepTransitionsTotal.WithLabelValues("enter", "ok").Inc()
	return seq.State(), nil
}

// State returns the session's checkout state.
func (s *CheckoutService) State(ctx context.Context, sessionID string) (checkout.State, error) {
	seq, err := s.sequencer(sessionID)
	if err != nil {
		return checkout.State{}, err
	}
	return seq.State(), nil
}

// SubmitShipping completes the shipping step.
func (s *CheckoutService) SubmitShipping(ctx context.Context, sessionID string, addr models.ShippingAddress) (checkout.State, error) {
	return s.advance(ctx, sessionID, checkout.StepShipping, func(seq *checkout.Sequencer) error {
		return seq.CompleteShipping(addr)
	})
}

// SubmitPayment completes the payment step.
func (s *CheckoutService) SubmitPayment(ctx context.Context, sessionID string, method models.PaymentMethod) (checkout.State, error) {
	return s.advance(ctx, sessionID, checkout.StepPayment, func(seq *checkout.Sequencer) error {
		return seq.CompletePayment(method)
	})
}

// Edit returns to an earlier step.
func (s *CheckoutService) Edit(ctx context.Context, sessionID string, step checkout.Step) (checkout.State, error) {
	seq, err := s.sequencer(sessionID)
	if err != nil {
		return checkout.State{}, err
	}
	if err := seq.Edit(step); err != nil {
		return checkout.State{}, err
	}
	return seq.State(), nil
}

// PlaceOrder submits the order. A Redis lock keeps a second instance from
// submitting the same session concurrently.
func (s *CheckoutService) PlaceOrder(ctx context.Context, sessionID string, termsAccepted bool, idempotencyKey string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.PlaceOrder")
	defer span.End()

	seq, err := s.sequencer(sessionID)
	if err != nil {
		return nil, err
	}

	lockKey := "checkout:" + sessionID
	token, err := s.locks.AcquireLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock checkout: %w", err)
	}
	if token == "" {
		return nil, checkout.ErrSubmissionInFlight
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locks.ReleaseLock(releaseCtx, lockKey, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.Error(err))
		}
	}()

	seq.UseIdempotencyKey(idempotencyKey)
	order, err := seq.PlaceOrder(ctx, termsAccepted, s.submitter)
	if err != nil {
		util.CheckoutStepTransitionsTotal.WithLabelValues("place_order", "rejected").Inc()
		return nil, err
	}

	s.carts.OrderPlaced(ctx, sessionID)
	util.CheckoutStepTransitionsTotal.WithLabelValues("place_order", "ok").Inc()
	return order, nil
}

func (s *CheckoutService) advance(ctx context.Context, sessionID string, step checkout.Step, fn func(*checkout.Sequencer) error) (checkout.State, error) {
	_, span := util.StartSpan(ctx, "CheckoutService."+step.String())
	defer span.End()

	seq, err := s.sequencer(sessionID)
	if err != nil {
		return checkout.State{}, err
	}
	if err := fn(seq); err != nil {
		util.CheckoutStepTransitionsTotal.WithLabelValues(step.String(), "rejected").Inc()
		return checkout.State{}, err
	}
	util.CheckoutStepTransitionsTotal.WithLabelValues(step.String(), "ok").Inc()
	return seq.State(), nil
}

func (s *CheckoutService) sequencer(sessionID string) (*checkout.Sequencer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNoCheckout
	}
	return seq, nil
}
