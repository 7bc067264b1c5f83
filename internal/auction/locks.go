package auction

import "sync"

// LockTable hands out one mutex per auction so bidding, cancellation and
// settlement on the same auction serialize while different auctions run
// fully in parallel. Entries live for the process lifetime; the set of
// open auctions is small.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the auction's mutex, creating it on first use.
func (t *LockTable) Lock(auctionID string) {
	t.mu.Lock()
	l, ok := t.locks[auctionID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[auctionID] = l
	}
	t.mu.Unlock()

	l.Lock()
}

// Unlock releases the auction's mutex.
func (t *LockTable) Unlock(auctionID string) {
	t.mu.Lock()
	l := t.locks[auctionID]
	t.mu.Unlock()

	if l != nil {
		l.Unlock()
	}
}
