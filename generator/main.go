package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	parbend "git.solver4all.com/azaryc2s/parbend"
)

var factories parbend.ArrayIntFlags
var customers parbend.ArrayIntFlags

func main() {
	flag.Var(&factories, "f", "List of factory counts")
	flag.Var(&customers, "c", "List of customer counts")
	name := flag.String("name", "facility", "Name for the instances")
	count := flag.Int("count", 10, "Number of instances per combination")
	stock := flag.Bool("stock", false, "Generate the fixed 3x5 textbook instance instead of random data")

	flag.Parse()

	if *stock {
		model, blocks, err := parbend.FacilityLocationModel(parbend.FacilityFixedCost, parbend.FacilityShipCost)
		if err != nil {
			log.Fatal(err)
		}
		writeInstance(model, blocks, fmt.Sprintf("%s_stock", *name),
			"Textbook facility location instance")
		return
	}
	if len(factories) == 0 || len(customers) == 0 {
		log.Fatal("Need at least one -f and one -c value")
	}

	for l := 0; l < *count; l++ {
		seed := time.Now().UnixNano()
		rand.Seed(seed)
		for i := 0; i < len(factories); i++ {
			for j := 0; j < len(customers); j++ {
				nf := factories[i]
				nc := customers[j]
				fixed, cost := parbend.RandomFacilityData(nf, nc, seed+int64(l))
				model, blocks, err := parbend.FacilityLocationModel(fixed, cost)
				if err != nil {
					log.Fatal(err)
				}
				instName := fmt.Sprintf("%s_%d_%d_%d", *name, nf, nc, l)
				comment := fmt.Sprintf("%s instance Nr. %d with %d factories and %d customers", *name, l, nf, nc)
				writeInstance(model, blocks, instName, comment)
			}
		}
	}
}

func writeInstance(model *parbend.Model, blocks parbend.BlockAssignment, name, comment string) {
	inst := parbend.Instance{Name: name, Comment: comment, Model: model, Blocks: blocks}
	if err := parbend.WriteInstance(fmt.Sprintf("%s.json", name), &inst); err != nil {
		log.Fatal(err)
	}
}
