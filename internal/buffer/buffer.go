// Package buffer implements the circular, sequence-numbered observation
// store: the system of record C6 writes every ingested observation into
// and C11/C12 read from for Current/Sample/streaming.
package buffer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/observer"
)

// OutOfRangeError is returned when a caller asks for a sequence outside
// [firstSequence, nextSequence).
type OutOfRangeError struct {
	Requested     uint64
	FirstSequence uint64
	NextSequence  uint64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("buffer: sequence %d out of range [%d, %d)", e.Requested, e.FirstSequence, e.NextSequence)
}

type checkpoint struct {
	sequence uint64
	latest   map[model.DataItemID]model.Observation
}

// CircularBuffer is a fixed-capacity ring of observations, indexed by a
// strictly monotone, gap-free sequence number. Capacity N need not be a
// power of two.
type CircularBuffer struct {
	mu sync.Mutex

	capacity          int
	checkpointInterval int

	slots         []*model.Observation // length capacity, slot = seq % capacity
	nextSequence  uint64
	firstSequence uint64

	latest      map[model.DataItemID]model.Observation
	conditions  map[model.DataItemID]*model.ConditionState
	checkpoints []checkpoint

	signaler *observer.Signaler
}

// New builds a CircularBuffer with the given capacity and checkpoint
// interval (entries between full latest-map snapshots).
func New(capacity, checkpointInterval int) *CircularBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	if checkpointInterval <= 0 {
		checkpointInterval = capacity
	}
	return &CircularBuffer{
		capacity:           capacity,
		checkpointInterval: checkpointInterval,
		slots:              make([]*model.Observation, capacity),
		// Sequence numbers are 1-based per spec §8 (the first Add assigns
		// sequence 1, not 0).
		nextSequence:  1,
		firstSequence: 1,
		latest:        make(map[model.DataItemID]model.Observation),
		conditions:    make(map[model.DataItemID]*model.ConditionState),
		signaler:      observer.NewSignaler(),
	}
}

// Signaler returns the buffer's change signaler, used to register
// ChangeObservers for streaming.
func (b *CircularBuffer) Signaler() *observer.Signaler { return b.signaler }

// Add assigns the next sequence number to obs, stores it, updates the
// latest-per-data-item view, and signals observers. Returns the assigned
// sequence.
func (b *CircularBuffer) Add(obs model.Observation) uint64 {
	b.mu.Lock()
	seq := b.nextSequence
	b.nextSequence++
	obs.Sequence = seq

	slot := int(seq % uint64(b.capacity))
	b.slots[slot] = &obs

	size := b.nextSequence - b.firstSequence
	if size > uint64(b.capacity) {
		b.firstSequence = b.nextSequence - uint64(b.capacity)
	}

	b.applyConditionState(obs)
	b.latest[obs.DataItem] = obs

	if seq%uint64(b.checkpointInterval) == 0 {
		b.checkpoints = append(b.checkpoints, checkpoint{sequence: seq, latest: cloneLatest(b.latest)})
	}
	b.mu.Unlock()

	b.signaler.Signal(seq)
	return seq
}

// applyConditionState folds a CONDITION observation into its per-data-item
// active set per §4.12, called with the lock held.
func (b *CircularBuffer) applyConditionState(obs model.Observation) {
	cond, ok := obs.Value.(model.Condition)
	if !ok {
		return
	}
	state, ok := b.conditions[obs.DataItem]
	if !ok {
		state = &model.ConditionState{}
		b.conditions[obs.DataItem] = state
	}
	state.Apply(cond, obs.Sequence)
}

func cloneLatest(m map[model.DataItemID]model.Observation) map[model.DataItemID]model.Observation {
	out := make(map[model.DataItemID]model.Observation, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Get returns the observation at seq if it is still held, else false.
func (b *CircularBuffer) Get(seq uint64) (model.Observation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq < b.firstSequence || seq >= b.nextSequence {
		return model.Observation{}, false
	}
	slot := b.slots[seq%uint64(b.capacity)]
	if slot == nil || slot.Sequence != seq {
		return model.Observation{}, false
	}
	return slot.Clone(), true
}

// Current returns the latest observation per data item in ids (or every
// data item if ids is empty), as of sequence at if at is non-nil, else as
// of now.
func (b *CircularBuffer) Current(ids map[model.DataItemID]struct{}, at *uint64) ([]model.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if at == nil {
		return filterLatest(b.latest, ids), nil
	}

	target := *at
	if target < b.firstSequence || target >= b.nextSequence {
		return nil, &OutOfRangeError{Requested: target, FirstSequence: b.firstSequence, NextSequence: b.nextSequence}
	}

	cp := b.checkpointBefore(target)
	latest := cloneLatest(cp.latest)
	for seq := cp.sequence + 1; seq <= target; seq++ {
		slot := b.slots[seq%uint64(b.capacity)]
		if slot != nil && slot.Sequence == seq {
			latest[slot.DataItem] = slot.Clone()
		}
	}
	return filterLatest(latest, ids), nil
}

func (b *CircularBuffer) checkpointBefore(seq uint64) checkpoint {
	idx := sort.Search(len(b.checkpoints), func(i int) bool {
		return b.checkpoints[i].sequence > seq
	})
	if idx == 0 {
		return checkpoint{sequence: 0, latest: nil}
	}
	return b.checkpoints[idx-1]
}

func filterLatest(m map[model.DataItemID]model.Observation, ids map[model.DataItemID]struct{}) []model.Observation {
	out := make([]model.Observation, 0, len(m))
	for id, obs := range m {
		if len(ids) > 0 {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		out = append(out, obs.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataItem < out[j].DataItem })
	return out
}

// Sample iterates forward from max(from, firstSequence) up to
// min(to, nextSequence), emitting at most count observations matching ids.
// endOfBuffer is true iff the iteration reached the end of the available
// range without hitting count.
func (b *CircularBuffer) Sample(ids map[model.DataItemID]struct{}, from uint64, to *uint64, count int) (observations []model.Observation, endSeq uint64, endOfBuffer bool, err error) {
	b.mu.Lock()
	first, next := b.firstSequence, b.nextSequence
	b.mu.Unlock()

	if from < first {
		return nil, 0, false, &OutOfRangeError{Requested: from, FirstSequence: first, NextSequence: next}
	}

	start := from
	if start < first {
		start = first
	}
	end := next
	if to != nil && *to < end {
		end = *to + 1
	}

	const chunkSize = 256
	pos := start
	for pos < end && len(observations) < count {
		chunkEnd := pos + chunkSize
		if chunkEnd > end {
			chunkEnd = end
		}

		b.mu.Lock()
		s := pos
		for ; s < chunkEnd && len(observations) < count; s++ {
			slot := b.slots[s%uint64(b.capacity)]
			if slot == nil || slot.Sequence != s {
				continue
			}
			if len(ids) > 0 {
				if _, ok := ids[slot.DataItem]; !ok {
					continue
				}
			}
			observations = append(observations, slot.Clone())
			endSeq = s + 1
		}
		b.mu.Unlock()

		pos = s
	}

	endOfBuffer = pos >= end
	if endSeq == 0 {
		endSeq = start
	}
	return observations, endSeq, endOfBuffer, nil
}

// FirstSequence returns the oldest sequence number still retained.
func (b *CircularBuffer) FirstSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstSequence
}

// NextSequence returns the sequence number the next Add will assign.
func (b *CircularBuffer) NextSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSequence
}

// ActiveConditions returns the active entries for a CONDITION data item,
// newest first.
func (b *CircularBuffer) ActiveConditions(id model.DataItemID) []model.ConditionEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.conditions[id]
	if !ok {
		return nil
	}
	return state.Snapshot()
}
