/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"time"

	parbend "git.solver4all.com/azaryc2s/parbend"
	"git.solver4all.com/azaryc2s/parbend/grb"
	"git.solver4all.com/azaryc2s/parbend/simplex"
)

const (
	STRAT_BENDERS = "BENDERS"
	STRAT_RACE    = "RACE"

	ENGINE_SIMPLEX = "simplex"
	ENGINE_GUROBI  = "gurobi"

	WORKER_OUT_SILENT   = "silent"
	WORKER_OUT_PREFIXED = "prefixed"
	WORKER_OUT_LOG      = "log"
)

var (
	machines  parbend.ArrayStringFlags
	addresses parbend.ArrayStringFlags

	inputF    *string
	outputF   *string
	strat     *string
	engine    *string
	transport *string
	workerOut *string
	binF      *string
	dumpF     *string
	absgap    *float64
	objdiff   *float64
	jobs      *int
	maxtime   *time.Duration

	sol parbend.Solution
)

func main() {
	flag.Var(&machines, "machine", "Machine to run a block or job on. May be repeated")
	flag.Var(&addresses, "address", "Address of a remote worker. May be repeated")
	inputF = flag.String("model", "input.json", "Path to the input instance")
	outputF = flag.String("out", "", "Path to the output file. By default the input file will be overwritten adding the solution")
	strat = flag.String("strat", STRAT_BENDERS, "Strategy for solving. BENDERS (default) or RACE")
	engine = flag.String("engine", ENGINE_SIMPLEX, "Solver engine. simplex (default) or gurobi")
	transport = flag.String("transport", parbend.TransportLocal, "Transport for worker handles. local, process, tcp or mpi")
	workerOut = flag.String("output", WORKER_OUT_LOG, "Worker output handling. silent, prefixed or log (default)")
	binF = flag.String("bin", "", "Worker binary for the process transport")
	dumpF = flag.String("dump", "", "Prefix for dumping the decomposed models as JSON")
	absgap = flag.Float64("absgap", 1e-6, "Absolute gap at which the race is stopped")
	objdiff = flag.Float64("objdiff", 1e-5, "Minimal improvement for incumbents to be reported")
	jobs = flag.Int("jobs", 2, "Number of racing jobs")
	maxtime = flag.Duration("maxtime", 0, "Time limit for the race. 0 means no limit")

	flag.Parse()

	switch *transport {
	case parbend.TransportLocal, parbend.TransportProcess, parbend.TransportTCP, parbend.TransportMPI:
	default:
		log.Fatalf("Unknown transport: %s\n", *transport)
	}
	switch *workerOut {
	case WORKER_OUT_SILENT:
		log.SetOutput(ioutil.Discard)
	case WORKER_OUT_PREFIXED:
		log.SetPrefix("parbend: ")
	case WORKER_OUT_LOG:
	default:
		log.Fatalf("Unknown output mode: %s\n", *workerOut)
	}

	var connect parbend.Connector
	switch *engine {
	case ENGINE_SIMPLEX:
		connect = simplex.Connect
	case ENGINE_GUROBI:
		connect = grb.Connect
	default:
		log.Fatalf("Unknown engine: %s\n", *engine)
	}

	sol = parbend.Solution{System: parbend.CollectSysInfo()}

	inst, err := parbend.ReadInstance(*inputF)
	if err != nil {
		log.Fatalf("At %s: %s\n", *inputF, err.Error())
	}
	if err := inst.Model.Check(); err != nil {
		log.Fatalf("At %s: %s\n", *inputF, err.Error())
	}

	transports := make([]parbend.TransportConfig, len(machines))
	for i := range machines {
		transports[i] = parbend.TransportConfig{
			Kind:    *transport,
			Machine: machines[i],
			Bin:     *binF,
			Rank:    i,
		}
		if i < len(addresses) {
			transports[i].Address = addresses[i]
		}
	}

	startTime := time.Now()
	switch *strat {
	case STRAT_BENDERS:
		solveBenders(inst, connect, transports)
	case STRAT_RACE:
		solveRace(inst, connect, transports)
	default:
		log.Fatalf("Unknown strategy: %s\n", *strat)
	}
	sol.Time = time.Since(startTime).String()

	log.Println("---OPTIMIZATION DONE---")
	inst.Solution = &sol
	fileName := *inputF
	if *outputF != "" {
		fileName = *outputF
	}
	if err := parbend.WriteInstance(fileName, inst); err != nil {
		log.Fatalf("At %s: %s\n", fileName, err.Error())
	}
}

func solveBenders(inst *parbend.Instance, connect parbend.Connector, transports []parbend.TransportConfig) {
	if inst.Blocks == nil {
		log.Fatalf("Instance %s carries no block assignment\n", inst.Name)
	}
	cfg := parbend.BendersConfig{
		// The blocks hold the dualized subproblems and must report
		// unbounded rays, which only the in-process engine does.
		Connect:       simplex.Connect,
		MasterConnect: connect,
		Transports:    transports,
		DumpPrefix:    *dumpF,
	}
	res, err := parbend.SolveBenders(inst.Model, inst.Blocks, cfg)
	if err != nil {
		log.Fatalf("At %s: %s\n", *inputF, err.Error())
	}
	sol.Status = res.Status.String()
	sol.Cuts = res.Cuts
	if res.Status == parbend.StatusOptimal {
		sol.Obj = res.Obj
		sol.Bound = res.Obj
		sol.X = res.X
	} else {
		sol.Comment = fmt.Sprintf("Finished without an optimum after %d cuts", res.Cuts)
	}
}

func solveRace(inst *parbend.Instance, connect parbend.Connector, transports []parbend.TransportConfig) {
	cfg := parbend.RaceConfig{
		Connect:    connect,
		Transports: transports,
		Jobs:       *jobs,
		AbsGap:     *absgap,
		ObjDiff:    *objdiff,
		MaxTime:    *maxtime,
	}
	res, err := parbend.SolveRace(inst.Model, cfg)
	if err != nil {
		log.Fatalf("At %s: %s\n", *inputF, err.Error())
	}
	sol.Status = res.Status.String()
	sol.Obj = res.Obj
	sol.Bound = res.Bound
	sol.X = res.X
	sol.StopReason = res.StopReason
	sol.BestJob = res.BestJob
}
