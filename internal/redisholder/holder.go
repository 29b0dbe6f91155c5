package redisholder

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Holder hands out the current client; the health loop may replace it.
type Holder struct {
	v atomic.Pointer[redis.UniversalClient]
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(&initial)
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	if p := h.v.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *Holder) swap(next redis.UniversalClient) redis.UniversalClient {
	if p := h.v.Swap(&next); p != nil {
		return *p
	}
	return nil
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
