package engine

import (
	"strconv"
	"sync/atomic"
)

// UnknownLabel is returned for node ids that have not been assigned.
const UnknownLabel = "UNKNOWN"

// currencyIndex is a bidirectional mapping between (currency, exchange) pairs
// and dense node ids. Ids are assigned on first sight and never reused.
//
// The forward map is written only by the ingest worker, so it needs no lock.
// The reverse side is an append-only array of atomic pointers: the detection
// worker formats labels concurrently with inserts, and a published entry is
// immutable, so a plain atomic load is enough on the read side.
type currencyIndex struct {
	forward map[string]uint32
	labels  []atomic.Pointer[string]
	size    atomic.Uint32
}

func newCurrencyIndex(capacity int) *currencyIndex {
	return &currencyIndex{
		forward: make(map[string]uint32, capacity),
		labels:  make([]atomic.Pointer[string], capacity),
	}
}

// nodeKey builds the composite label for a currency on an exchange,
// e.g. "BTC_0" for BTC on exchange id 0.
func nodeKey(currency string, exchange uint8) string {
	return currency + "_" + strconv.Itoa(int(exchange))
}

// lookupOrInsert returns the node id for (currency, exchange), assigning the
// next dense id on first sight. Ingest-worker only. The second return is
// false when the index is at capacity and the pair is new.
func (ci *currencyIndex) lookupOrInsert(currency string, exchange uint8) (uint32, bool) {
	key := nodeKey(currency, exchange)
	if id, ok := ci.forward[key]; ok {
		return id, true
	}

	id := uint32(len(ci.forward))
	if int(id) >= len(ci.labels) {
		return 0, false
	}

	ci.forward[key] = id
	label := key
	ci.labels[id].Store(&label)
	ci.size.Store(id + 1)
	return id, true
}

// label returns the composite label for a node id, or UnknownLabel if the id
// has not been assigned. Safe to call from any goroutine.
func (ci *currencyIndex) label(id uint32) string {
	if int(id) >= len(ci.labels) {
		return UnknownLabel
	}
	if p := ci.labels[id].Load(); p != nil {
		return *p
	}
	return UnknownLabel
}

// count returns the number of assigned node ids. The value is a lower bound
// when reads race with an insert, which is fine for bounding sweeps: a node
// published after the count was taken has no finite edges yet either.
func (ci *currencyIndex) count() uint32 {
	return ci.size.Load()
}
