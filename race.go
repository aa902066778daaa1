/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// A Preset is a named bundle of solver parameters that biases one racing
// job toward a particular goal. Jobs cycle through the preset table by
// index, so any number of jobs can race on any number of presets.
type Preset struct {
	Name   string
	Params map[string]float64
}

// DefaultPresets holds the two stock strategies: one job dives for
// incumbents, the other proves the dual bound.
var DefaultPresets = []Preset{
	{
		Name: "primal only",
		Params: map[string]float64{
			ParamHeuristics: 1,
			ParamNodeSelect: 0, // depth-first, dive for feasible points
			ParamCutPasses:  0,
		},
	},
	{
		Name: "dual bound",
		Params: map[string]float64{
			ParamHeuristics: 0,
			ParamNodeSelect: 1, // best-bound
			ParamCutPasses:  2,
		},
	},
}

// RaceConfig controls a concurrent race.
type RaceConfig struct {
	Connect    Connector
	Transports []TransportConfig // one per job; empty means all local

	Jobs    int
	Presets []Preset // nil means DefaultPresets

	// AbsGap is the absolute primal/dual gap at which the race stops
	// even though no job has finished.
	AbsGap float64

	// ObjDiff is pushed to every job so workers only report incumbents
	// that improve by at least this much, keeping info traffic low.
	ObjDiff float64

	PollInterval   time.Duration
	HeartbeatEvery time.Duration

	// MaxTime, when positive, aborts the race after the deadline and
	// reports the best incumbent found so far.
	MaxTime time.Duration
}

// Stop reasons reported in RaceResult.StopReason.
const (
	StopGap      = "gap"
	StopFinished = "finished"
	StopTimeout  = "timeout"
)

// RaceResult is the outcome of a concurrent race.
type RaceResult struct {
	Status     Status
	Obj        float64
	Bound      float64
	X          []float64
	StopReason string
	BestJob    int
}

// jobState is the per-job progress mirror fed by info events. The race
// loop reads it for heartbeat logging; the shared bound state, not this
// mirror, drives the stopping rule.
type jobState struct {
	mu      sync.Mutex
	primal  float64
	dual    float64
	detTime float64
	hasP    bool
	hasD    bool
}

func (s *jobState) update(ev InfoEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Tag {
	case InfoNewPrimal:
		s.primal, s.hasP = ev.Value, true
	case InfoNewDual:
		s.dual, s.hasD = ev.Value, true
	case InfoDetTime:
		s.detTime = ev.Value
	}
}

func (s *jobState) snapshot() (primal, dual, det float64, hasP, hasD bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primal, s.dual, s.detTime, s.hasP, s.hasD
}

// SolveRace runs cfg.Jobs copies of model concurrently, each under a
// different preset and seed, and stops as soon as either the shared
// primal/dual gap closes or any job finishes on its own. All remaining
// jobs are killed, then every job is joined, and the answer is taken
// from the job owning the best incumbent.
func SolveRace(model *Model, cfg RaceConfig) (*RaceResult, error) {
	if cfg.Jobs < 1 {
		return nil, fmt.Errorf("race needs at least one job, got %d", cfg.Jobs)
	}
	if len(cfg.Transports) > 0 && len(cfg.Transports) < cfg.Jobs {
		return nil, fmt.Errorf("%w: %d jobs but only %d machines",
			ErrConnection, cfg.Jobs, len(cfg.Transports))
	}
	presets := cfg.Presets
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	heartbeat := cfg.HeartbeatEvery
	if heartbeat <= 0 {
		heartbeat = 2 * time.Second
	}

	bounds := NewSharedBoundState(model.Sense)
	stats := make([]*jobState, cfg.Jobs)
	handles := make([]Handle, 0, cfg.Jobs)
	defer func() {
		for i := len(handles) - 1; i >= 0; i-- {
			if err := handles[i].Disconnect(); err != nil {
				log.Printf("job %d: disconnect: %s\n", i, err.Error())
			}
		}
	}()

	solves := make([]SolveHandle, cfg.Jobs)
	for i := 0; i < cfg.Jobs; i++ {
		tcfg := TransportConfig{Kind: TransportLocal}
		if len(cfg.Transports) > 0 {
			tcfg = cfg.Transports[i]
		}
		if tcfg.LogName == "" {
			tcfg.LogName = fmt.Sprintf("job%04d.log", i)
		}
		h, err := cfg.Connect(tcfg)
		if err != nil {
			return nil, fmt.Errorf("%w: job %d: %v", ErrConnection, i, err)
		}
		handles = append(handles, h)
		if err := h.PushModel(model); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}

		preset := presets[i%len(presets)]
		for name, val := range preset.Params {
			if err := h.SetParam(name, val); err != nil {
				return nil, fmt.Errorf("job %d: preset %q: %w", i, preset.Name, err)
			}
		}
		// Distinct seeds keep identical presets from exploring the same
		// tree in lockstep.
		if err := h.SetParam(ParamSeed, float64(i)); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		if cfg.ObjDiff > 0 {
			if err := h.SetParam(ParamObjDiff, cfg.ObjDiff); err != nil {
				return nil, fmt.Errorf("job %d: %w", i, err)
			}
		}

		job := i
		stats[i] = &jobState{}
		h.SetInfoHandler(func(ev InfoEvent) {
			stats[job].update(ev)
			switch ev.Tag {
			case InfoNewPrimal:
				bounds.UpdatePrimal(ev.Value, job)
			case InfoNewDual:
				bounds.UpdateDual(ev.Value, job)
			}
		})
		log.Printf("job %d: preset %q, seed %d\n", i, preset.Name, i)
	}
	for i := 0; i < cfg.Jobs; i++ {
		sh, err := handles[i].SolveAsync()
		if err != nil {
			for k := 0; k < i; k++ {
				solves[k].Kill()
			}
			for k := 0; k < i; k++ {
				solves[k].Join()
			}
			return nil, &SolveError{Block: i, Err: err}
		}
		solves[i] = sh
	}

	finished := make([]bool, cfg.Jobs)
	reason := ""
	start := time.Now()
	lastBeat := start
	for reason == "" {
		anyDone := false
		for i, sh := range solves {
			if !finished[i] && sh.Done() {
				finished[i] = true
				anyDone = true
			}
		}
		switch {
		case bounds.GapClosed(cfg.AbsGap):
			reason = StopGap
		case anyDone:
			reason = StopFinished
		case cfg.MaxTime > 0 && time.Since(start) >= cfg.MaxTime:
			reason = StopTimeout
		default:
			if time.Since(lastBeat) >= heartbeat {
				logHeartbeat(stats)
				lastBeat = time.Now()
			}
			time.Sleep(poll)
		}
	}
	log.Printf("stopping race: %s\n", reason)

	// Kill every job that is still running, and only then start joining.
	// A join before all kills are out would serialize the shutdown on
	// the slowest worker.
	for i, sh := range solves {
		if !finished[i] {
			sh.Kill()
		}
	}
	results := make([]*SolveResult, cfg.Jobs)
	var firstErr error
	for i, sh := range solves {
		res, err := sh.Join()
		if err == nil && res.Status == StatusError {
			err = res.Err
			if err == nil {
				err = fmt.Errorf("solve failed")
			}
		}
		if err != nil && firstErr == nil {
			firstErr = &SolveError{Block: i, Err: err}
			for _, rest := range solves[i+1:] {
				rest.Kill()
			}
		}
		results[i] = res
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return collectRace(model.Sense, reason, results, bounds), nil
}

// collectRace merges the joined per-job results into the final answer.
// The incumbent comes from the job the shared bound state records as the
// primal owner; jobs killed mid-solve still report their incumbent, so
// the winner is chosen over all jobs, not just the finisher. The
// best-joined scan only stands in when the owner's joined result carries
// no vector or a worse value.
func collectRace(sense ObjSense, reason string, results []*SolveResult, bounds *SharedBoundState) *RaceResult {
	out := &RaceResult{StopReason: reason, BestJob: -1}
	primal, dual := bounds.Snapshot()

	infeasible := 0
	for i, res := range results {
		if res.Status == StatusInfeasible {
			infeasible++
			continue
		}
		if res.X == nil {
			continue
		}
		if out.BestJob < 0 || better(sense, res.Obj, out.Obj) {
			out.BestJob = i
			out.Obj = res.Obj
			out.X = res.X
			out.Status = res.Status
		}
	}
	if primal.Valid {
		if res := results[primal.Owner]; res.X != nil &&
			(out.BestJob < 0 || !better(sense, out.Obj, res.Obj)) {
			out.BestJob = primal.Owner
			out.Obj = res.Obj
			out.X = res.X
			out.Status = res.Status
		}
	}

	if dual.Valid {
		out.Bound = dual.Bound
	} else {
		out.Bound = worstBound(sense)
	}

	if out.BestJob < 0 {
		// Every job races the same model, so a single infeasible verdict
		// settles the question; the others were merely killed first.
		if infeasible > 0 {
			out.Status = StatusInfeasible
		} else {
			out.Status = StatusNoSolution
		}
		// No incumbent anywhere: the primal bound degenerates to the
		// sense's worst value.
		out.Obj = -worstBound(sense)
		return out
	}
	if primal.Valid && better(sense, primal.Bound, out.Obj) {
		// The shared state saw a better incumbent than any joined result
		// carries; keep the joined vector but report honestly.
		log.Printf("race: info stream reported %g, best joined incumbent is %g\n",
			primal.Bound, out.Obj)
	}
	return out
}

func better(sense ObjSense, a, b float64) bool {
	if sense == Maximize {
		return a > b
	}
	return a < b
}

// worstBound is the sentinel for a missing dual bound: -Infinity when
// minimizing, +Infinity when maximizing. The negation gives the missing
// primal sentinel.
func worstBound(sense ObjSense) float64 {
	if sense == Maximize {
		return Infinity
	}
	return -Infinity
}

func logHeartbeat(stats []*jobState) {
	for i, s := range stats {
		primal, dual, det, hasP, hasD := s.snapshot()
		p, d := "-", "-"
		if hasP {
			p = fmt.Sprintf("%g", primal)
		}
		if hasD {
			d = fmt.Sprintf("%g", dual)
		}
		log.Printf("job %d: primal %s, dual %s, dettime %g\n", i, p, d, det)
	}
}
