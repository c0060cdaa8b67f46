package paper

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a reservation exceeds the free balance.
var ErrInsufficientFunds = errors.New("insufficient funds for liability")

const epsilon = 1e-9

type reservation struct {
	market string
	amount float64
}

// Account tracks a virtual bankroll: liability reserved by live and matched orders, and profit
// credited when markets settle.
type Account struct {
	mu              sync.Mutex
	startingBalance float64
	balance         decimal.Decimal
	realizedPnL     decimal.Decimal
	reservations    map[string]reservation
}

// Snapshot is a copy of the account state.
type Snapshot struct {
	Balance     float64
	Reserved    float64
	Available   float64
	RealizedPnL float64
}

// NewAccount constructs an account holding startingBalance. A zero balance disables the funds
// check.
func NewAccount(startingBalance float64) *Account {
	return &Account{
		startingBalance: startingBalance,
		balance:         decimal.NewFromFloat(startingBalance),
		reservations:    make(map[string]reservation),
	}
}

// StartingBalance returns the initial bankroll.
func (a *Account) StartingBalance() float64 { return a.startingBalance }

// Reserve sets the liability held for an order, replacing any earlier reservation for it.
func (a *Account) Reserve(market, orderID string, liability float64) error {
	if liability < 0 {
		liability = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startingBalance > 0 {
		free := a.available() + a.reservations[orderID].amount
		if liability > free+epsilon {
			return ErrInsufficientFunds
		}
	}
	a.reservations[orderID] = reservation{market: market, amount: liability}
	return nil
}

// Release drops the reservation of an order that never matched.
func (a *Account) Release(orderID string) {
	a.mu.Lock()
	delete(a.reservations, orderID)
	a.mu.Unlock()
}

// Settle credits the profit of a settled market and frees everything reserved against it.
func (a *Account) Settle(market string, profit decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, r := range a.reservations {
		if r.market == market {
			delete(a.reservations, id)
		}
	}
	a.balance = a.balance.Add(profit)
	a.realizedPnL = a.realizedPnL.Add(profit)
}

// Snapshot returns a copy of balances.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	balance, _ := a.balance.Float64()
	realized, _ := a.realizedPnL.Float64()
	return Snapshot{
		Balance:     balance,
		Reserved:    a.reserved(),
		Available:   a.available(),
		RealizedPnL: realized,
	}
}

// RealizedPnL returns the profit of every settled market.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, _ := a.realizedPnL.Float64()
	return v
}

func (a *Account) reserved() float64 {
	var total float64
	for _, r := range a.reservations {
		total += r.amount
	}
	return total
}

func (a *Account) available() float64 {
	balance, _ := a.balance.Float64()
	return balance - a.reserved()
}
