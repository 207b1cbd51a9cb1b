// Package resourcemgr implements the Resource Manager (C10): a bounded pool
// per types.ResourceType, a priority queue of requests that could not be
// granted immediately, and a background loop that expires stale allocations
// and drains the queue as capacity frees up.
package resourcemgr

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"dtcore/internal/coreerrors"
	"dtcore/internal/types"
)

// Limit holds the soft, hard, and emergency thresholds for one resource
// pool, expressed as a fraction of capacity in use ([0,1]).
type Limit struct {
	Capacity  float64
	Soft      float64
	Hard      float64
	Emergency float64
}

func defaultLimit(capacity float64) Limit {
	return Limit{Capacity: capacity, Soft: 0.7, Hard: 0.9, Emergency: 0.97}
}

// DefaultLimits returns capacity limits for the seven resource pools the
// Resource Manager governs, sized from runtime.NumCPU() where that is a
// meaningful unit and as a synthetic percentage pool otherwise.
func DefaultLimits(numCPU int) map[types.ResourceType]Limit {
	return map[types.ResourceType]Limit{
		types.ResourceCPU:         defaultLimit(100),
		types.ResourceMemory:      defaultLimit(100),
		types.ResourceDiskIO:      defaultLimit(100),
		types.ResourceNetIO:       defaultLimit(100),
		types.ResourceDBConns:     defaultLimit(20),
		types.ResourceThreadPool: defaultLimit(float64(numCPU) * 4),
		types.ResourceProcessPool: defaultLimit(float64(numCPU)),
	}
}

// EmergencyObserver is notified when a request is denied or times out while
// queued. Satisfied by internal/metrics.Collector's RecordResourceDenied;
// threshold crossings are logged directly and not reported here.
type EmergencyObserver interface {
	RecordResourceDenied(requesterID string, rt types.ResourceType)
}

type noopObserver struct{}

func (noopObserver) RecordResourceDenied(string, types.ResourceType) {}

// pending is one queued request waiting for capacity, scored for the
// priority heap.
type pending struct {
	req      types.ResourceRequest
	queued   time.Time
	grantCh  chan grantResult
	index    int
}

type grantResult struct {
	alloc *types.ResourceAllocation
	err   error
}

// priorityHeap orders pending requests by ascending score: lower score is
// serviced first. All pending entries in one heap share a ResourceType, so
// the scarcity term of priorityScore is identical across them at any given
// comparison and is computed here with an availability of 0 for every entry.
// tryAllocateLocked does not consult priorityScore.
type priorityHeap []*pending

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	return priorityScore(h[i].req, 0) < priorityScore(h[j].req, 0)
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *priorityHeap) Push(x interface{}) {
	p := x.(*pending)
	p.index = len(*h)
	*h = append(*h, p)
}
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// priorityScore implements (10 - priority) + urgencyFactor + scarcityFactor,
// lower is serviced first. urgencyFactor is the request's timeout as a
// fraction of 30s, capped at 1 (a request with no timeout gets 1), so a
// request close to its deadline scores lower; scarcity grows as the target
// pool's free capacity shrinks.
func priorityScore(req types.ResourceRequest, availabilityPct float64) float64 {
	base := float64(10 - req.Priority)

	urgency := 1.0
	if req.Timeout > 0 {
		urgency = req.Timeout.Seconds() / 30.0
		if urgency > 1 {
			urgency = 1
		}
	}

	scarcity := (100.0 - availabilityPct) / 100.0
	if scarcity < 0 {
		scarcity = 0
	}

	return base + urgency + scarcity
}

// Manager allocates and tracks resource usage across the seven pools a
// plan's steps draw from. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	limits   map[types.ResourceType]Limit
	inUse    map[types.ResourceType]float64
	active   map[string]*types.ResourceAllocation
	waiters  map[types.ResourceType]*priorityHeap
	observer EmergencyObserver

	tickerStop chan struct{}
	wg         sync.WaitGroup
}

// NewManager builds a Manager with the given per-resource limits and starts
// its background monitor goroutine, which expires stale allocations and
// drains queued requests once a second. Call Stop to halt it and release
// all active allocations.
func NewManager(limits map[types.ResourceType]Limit, observer EmergencyObserver) *Manager {
	if observer == nil {
		observer = noopObserver{}
	}
	waiters := make(map[types.ResourceType]*priorityHeap, len(limits))
	for rt := range limits {
		h := &priorityHeap{}
		heap.Init(h)
		waiters[rt] = h
	}
	m := &Manager{
		limits:     limits,
		inUse:      make(map[types.ResourceType]float64, len(limits)),
		active:     make(map[string]*types.ResourceAllocation),
		waiters:    waiters,
		observer:   observer,
		tickerStop: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.monitor()
	return m
}

// Stop halts the background monitor and releases every active allocation.
func (m *Manager) Stop() {
	close(m.tickerStop)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.active {
		m.releaseLocked(id)
	}
}

func (m *Manager) monitor() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.tickerStop:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.expireLocked()
			m.drainLocked()
			m.checkEmergenciesLocked()
			m.mu.Unlock()
		}
	}
}

func (m *Manager) expireLocked() {
	now := time.Now()
	for id, a := range m.active {
		if a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
			m.releaseLocked(id)
		}
	}
}

func (m *Manager) checkEmergenciesLocked() {
	for rt, limit := range m.limits {
		if limit.Capacity == 0 {
			continue
		}
		used := m.inUse[rt] / limit.Capacity
		switch {
		case used >= limit.Emergency:
			log.Printf("resourcemgr: %s at emergency threshold (%.0f%% used)", rt, used*100)
		case used >= limit.Hard:
			log.Printf("resourcemgr: %s above hard limit (%.0f%% used)", rt, used*100)
		case used >= limit.Soft:
			log.Printf("resourcemgr: %s above soft limit (%.0f%% used)", rt, used*100)
		}
	}
}

// RequestResource attempts an immediate allocation; if the pool lacks
// capacity and the request can wait, it is queued and this call blocks
// until granted, denied on timeout, or ctx is canceled. If the request
// cannot wait, capacity shortfall is an immediate KindResourceDenied error.
func (m *Manager) RequestResource(ctx context.Context, req types.ResourceRequest) (*types.ResourceAllocation, error) {
	m.mu.Lock()
	if alloc, ok := m.tryAllocateLocked(req); ok {
		m.mu.Unlock()
		return alloc, nil
	}
	if !req.CanWait {
		m.mu.Unlock()
		m.observer.RecordResourceDenied(req.RequesterID, req.ResourceType)
		return nil, coreerrors.New(coreerrors.KindResourceDenied, req.RequesterID,
			fmt.Errorf("insufficient %s capacity", req.ResourceType))
	}

	p := &pending{req: req, queued: time.Now(), grantCh: make(chan grantResult, 1)}
	h, ok := m.waiters[req.ResourceType]
	if !ok {
		h = &priorityHeap{}
		heap.Init(h)
		m.waiters[req.ResourceType] = h
	}
	heap.Push(h, p)
	m.mu.Unlock()

	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-p.grantCh:
		return res.alloc, res.err
	case <-timeoutCh:
		m.removeWaiter(req.ResourceType, p)
		m.observer.RecordResourceDenied(req.RequesterID, req.ResourceType)
		return nil, coreerrors.New(coreerrors.KindTimeout, req.RequesterID,
			fmt.Errorf("timed out waiting for %s", req.ResourceType))
	case <-ctx.Done():
		m.removeWaiter(req.ResourceType, p)
		return nil, ctx.Err()
	}
}

func (m *Manager) removeWaiter(rt types.ResourceType, target *pending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.waiters[rt]
	if !ok {
		return
	}
	for i, p := range *h {
		if p == target {
			heap.Remove(h, i)
			return
		}
	}
}

func (m *Manager) tryAllocateLocked(req types.ResourceRequest) (*types.ResourceAllocation, bool) {
	limit, ok := m.limits[req.ResourceType]
	if !ok || limit.Capacity == 0 {
		return nil, false
	}
	if m.inUse[req.ResourceType]+req.Amount > limit.Capacity*limit.Emergency {
		return nil, false
	}

	id := uuid.NewString()
	now := time.Now()
	var expires *time.Time
	if req.DurationEstimate > 0 {
		t := now.Add(req.DurationEstimate)
		expires = &t
	}
	alloc := &types.ResourceAllocation{
		AllocationID: id,
		RequesterID:  req.RequesterID,
		Type:         req.ResourceType,
		Amount:       req.Amount,
		Start:        now,
		ExpiresAt:    expires,
		Active:       true,
	}
	m.inUse[req.ResourceType] += req.Amount
	m.active[id] = alloc

	out := *alloc
	return &out, true
}

// ReleaseResource returns an allocation's capacity to its pool and wakes
// any waiters that can now be serviced.
func (m *Manager) ReleaseResource(allocationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[allocationID]; !ok {
		return fmt.Errorf("resourcemgr: unknown allocation %s", allocationID)
	}
	m.releaseLocked(allocationID)
	m.drainLocked()
	return nil
}

func (m *Manager) releaseLocked(allocationID string) {
	a, ok := m.active[allocationID]
	if !ok {
		return
	}
	a.Active = false
	m.inUse[a.Type] -= a.Amount
	if m.inUse[a.Type] < 0 {
		m.inUse[a.Type] = 0
	}
	delete(m.active, allocationID)
}

// UpdateUsage records the actual observed consumption on an active
// allocation's ActualUsage field (the executor reports a step's elapsed
// seconds here).
func (m *Manager) UpdateUsage(allocationID string, actualUsage float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[allocationID]
	if !ok {
		return fmt.Errorf("resourcemgr: unknown allocation %s", allocationID)
	}
	a.ActualUsage = actualUsage
	return nil
}

// drainLocked attempts to grant queued requests, highest priority first,
// for every resource pool that has waiters. A request at the front of its
// heap that still cannot be allocated blocks the rest of that pool's queue
// until capacity frees up, preserving priority order.
func (m *Manager) drainLocked() {
	for _, h := range m.waiters {
		for h.Len() > 0 {
			p := (*h)[0]
			alloc, ok := m.tryAllocateLocked(p.req)
			if !ok {
				break
			}
			heap.Pop(h)
			p.grantCh <- grantResult{alloc: alloc}
		}
	}
}

// Utilization returns the current fraction of capacity in use per resource
// type, for status reporting.
func (m *Manager) Utilization() map[types.ResourceType]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.ResourceType]float64, len(m.limits))
	for rt, limit := range m.limits {
		if limit.Capacity == 0 {
			out[rt] = 0
			continue
		}
		out[rt] = m.inUse[rt] / limit.Capacity
	}
	return out
}
