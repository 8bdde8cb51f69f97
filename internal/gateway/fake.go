package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory processor for local runs and tests.  Payments are
// registered with Put; GetPayment on an unknown key behaves like a 4xx.
type Fake struct {
	mu        sync.Mutex
	payments  map[string]Payment
	cancelErr error
	getErr    error

	Cancels  []string
	GetCalls int
}

// NewFake returns an empty Fake.
func NewFake() *Fake { return &Fake{payments: make(map[string]Payment)} }

// Put registers or replaces the processor record of a payment.
func (f *Fake) Put(p Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.PaymentKey] = p
}

// FailCancels makes every later CancelPayment fail with err.
func (f *Fake) FailCancels(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelErr = err
}

// FailGets makes every later GetPayment fail with err.
func (f *Fake) FailGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *Fake) GetPayment(_ context.Context, paymentKey string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.payments[paymentKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFoundInPG, paymentKey)
	}
	return &p, nil
}

func (f *Fake) CancelPayment(_ context.Context, paymentKey, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cancels = append(f.Cancels, paymentKey)
	if f.cancelErr != nil {
		return fmt.Errorf("%w: %w", ErrPaymentCancelFailed, f.cancelErr)
	}
	if p, ok := f.payments[paymentKey]; ok {
		p.Status = "CANCELED"
		f.payments[paymentKey] = p
	}
	return nil
}

// CancelCount returns how many cancel calls were made.
func (f *Fake) CancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Cancels)
}
