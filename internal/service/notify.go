package service

import (
	"sync"
	"time"
)

// PaymentEvent is broadcast when a payment for a wallet verifies.
type PaymentEvent struct {
	Wallet   string    `json:"wallet"`
	Amount   string    `json:"amount"`
	Comment  string    `json:"comment"`
	PaidAt   time.Time `json:"paid_at"`
	CanClaim bool      `json:"can_claim"`
}

// PaymentNotifier is an in-process fanout of payment events to interested
// subscribers (the websocket handlers). Slow subscribers miss events rather
// than blocking verification.
type PaymentNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan PaymentEvent]struct{}
}

func NewPaymentNotifier() *PaymentNotifier {
	return &PaymentNotifier{subs: make(map[string]map[chan PaymentEvent]struct{})}
}

// Subscribe registers interest in one wallet's events. The returned cancel
// func must be called to release the channel.
func (n *PaymentNotifier) Subscribe(wallet string) (<-chan PaymentEvent, func()) {
	ch := make(chan PaymentEvent, 4)

	n.mu.Lock()
	if n.subs[wallet] == nil {
		n.subs[wallet] = make(map[chan PaymentEvent]struct{})
	}
	n.subs[wallet][ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if set, ok := n.subs[wallet]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(n.subs, wallet)
			}
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *PaymentNotifier) Publish(evt PaymentEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[evt.Wallet] {
		select {
		case ch <- evt:
		default:
		}
	}
}
