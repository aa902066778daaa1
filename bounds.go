/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

import "sync"

// BoundRecord is the best known primal or dual bound and which job
// reported it.
type BoundRecord struct {
	Valid bool
	Bound float64
	Owner int
}

// SharedBoundState is the best known primal and dual bound across all
// concurrent solves. Info handlers update it from the solve goroutines,
// the coordinator poll loop reads it, so every access goes through one
// mutex as a unit; a reader can never observe a valid flag paired with a
// stale bound.
type SharedBoundState struct {
	mu     sync.Mutex
	sense  ObjSense
	primal BoundRecord
	dual   BoundRecord
}

// NewSharedBoundState creates a bound state for the given objective
// sense. The sense decides what "improves" means: for Minimize the
// primal bound improves on decrease and the dual bound on increase,
// for Maximize it is the other way around.
func NewSharedBoundState(sense ObjSense) *SharedBoundState {
	return &SharedBoundState{sense: sense}
}

func (s *SharedBoundState) Sense() ObjSense { return s.sense }

// UpdatePrimal records a primal bound reported by owner. It returns true
// if the bound improved on the best known value.
func (s *SharedBoundState) UpdatePrimal(bound float64, owner int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.primal.Valid ||
		(s.sense == Minimize && bound < s.primal.Bound) ||
		(s.sense == Maximize && bound > s.primal.Bound) {
		s.primal = BoundRecord{Valid: true, Bound: bound, Owner: owner}
		return true
	}
	return false
}

// UpdateDual records a dual bound reported by owner. It returns true if
// the bound improved on the best known value.
func (s *SharedBoundState) UpdateDual(bound float64, owner int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dual.Valid ||
		(s.sense == Minimize && bound > s.dual.Bound) ||
		(s.sense == Maximize && bound < s.dual.Bound) {
		s.dual = BoundRecord{Valid: true, Bound: bound, Owner: owner}
		return true
	}
	return false
}

// Snapshot returns a consistent copy of both records.
func (s *SharedBoundState) Snapshot() (primal, dual BoundRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primal, s.dual
}

// GapClosed reports whether both bounds are known and within absgap of
// each other, compared according to the objective sense.
func (s *SharedBoundState) GapClosed(absgap float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.primal.Valid || !s.dual.Valid {
		return false
	}
	if s.sense == Minimize {
		return s.dual.Bound+absgap >= s.primal.Bound
	}
	return s.dual.Bound-absgap <= s.primal.Bound
}
