package transport

import (
	"container/heap"
	"net"
	"sync"
	"time"
)

// sendItem is one response datagram waiting for its send_at_time. seq
// breaks ties between items with an identical send time, in receive order.
type sendItem struct {
	sendAt time.Time
	seq    uint64
	remote *net.UDPAddr
	data   []byte
}

// sendHeap is a container/heap.Interface min-heap ordered by send_at_time
// then seq. This is the one stdlib-only data structure in this design —
// nothing in the adapted repository's own code models a priority queue,
// and container/heap is exactly the shape a delay-reordering send buffer
// needs.
type sendHeap []*sendItem

func (h sendHeap) Len() int { return len(h) }
func (h sendHeap) Less(i, j int) bool {
	if h[i].sendAt.Equal(h[j].sendAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].sendAt.Before(h[j].sendAt)
}
func (h sendHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *sendHeap) Push(x any)   { *h = append(*h, x.(*sendItem)) }
func (h *sendHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// sendScheduler holds pending response datagrams and releases them to a
// sink function in send_at_time order, regardless of the order they were
// enqueued — this is what lets delay behaviors reorder traffic realistically.
type sendScheduler struct {
	sink func(*net.UDPAddr, []byte)

	mu      sync.Mutex
	h       sendHeap
	nextSeq uint64
	wake    chan struct{}
}

func newSendScheduler(sink func(*net.UDPAddr, []byte)) *sendScheduler {
	return &sendScheduler{
		sink: sink,
		wake: make(chan struct{}, 1),
	}
}

// Enqueue schedules data for delivery to remote at sendAt.
func (s *sendScheduler) Enqueue(sendAt time.Time, remote *net.UDPAddr, data []byte) {
	s.mu.Lock()
	s.nextSeq++
	heap.Push(&s.h, &sendItem{sendAt: sendAt, seq: s.nextSeq, remote: remote, data: data})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// CancelAfter drops every pending item whose send_at_time is at or after
// cutoff, used when a restart simulation must not let stale responses
// survive it.
func (s *sendScheduler) CancelAfter(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.h[:0]
	for _, item := range s.h {
		if item.sendAt.Before(cutoff) {
			kept = append(kept, item)
		}
	}
	s.h = kept
	heap.Init(&s.h)
}

// Run drains due items to sink until stop is closed. It is the single
// timer goroutine the design calls for: one thread owns the heap and the
// socket write, so send order is exactly send_at_time order.
func (s *sendScheduler) Run(stop <-chan struct{}) {
	for {
		s.mu.Lock()
		var delay time.Duration
		if len(s.h) == 0 {
			delay = time.Hour
		} else {
			delay = time.Until(s.h[0].sendAt)
			if delay < 0 {
				delay = 0
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}

		now := time.Now()
		for {
			s.mu.Lock()
			if len(s.h) == 0 || s.h[0].sendAt.After(now) {
				s.mu.Unlock()
				break
			}
			item := heap.Pop(&s.h).(*sendItem)
			s.mu.Unlock()
			s.sink(item.remote, item.data)
		}
	}
}
