package parbend

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// CollectSysInfo gathers the platform description recorded in every
// solution, so result files stay comparable across machines.
func CollectSysInfo() SysInfo {
	hostStat, _ := host.Info()
	cpuStat, _ := cpu.Info()
	vmStat, _ := mem.VirtualMemory()
	info := SysInfo{}
	if hostStat != nil {
		info.Platform = hostStat.Platform
	}
	if len(cpuStat) > 0 {
		info.CPU = cpuStat[0].ModelName
	}
	if vmStat != nil {
		info.RAM = fmt.Sprintf("%d GB", vmStat.Total/1024/1024/1024)
	}
	return info
}

// ReadInstance loads an instance file.
func ReadInstance(path string) (*Instance, error) {
	instStr, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inst Instance
	if err := json.Unmarshal(instStr, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// WriteInstance writes an instance (typically with its Solution filled
// in) back to disk, with numeric arrays compacted onto single lines.
func WriteInstance(path string, inst *Instance) error {
	jsonInst, err := json.MarshalIndent(inst, "", "\t")
	if err != nil {
		return err
	}
	jsonStr := SanitizeJsonArrayLineBreaks(string(jsonInst))
	return ioutil.WriteFile(path, []byte(jsonStr), 0644)
}

// dumpDecomposition writes the decomposed master and block models as
// JSON for offline inspection.
func dumpDecomposition(prefix string, master *MasterBlock, blocks []*SubBlock) {
	writeModelJSON(prefix+"_master.json", master.Model)
	for b, blk := range blocks {
		writeModelJSON(fmt.Sprintf("%s_block%04d.json", prefix, b), blk.Primal)
		writeModelJSON(fmt.Sprintf("%s_dual%04d.json", prefix, b), blk.Dual)
	}
}

func writeModelJSON(path string, model *Model) {
	jsonModel, err := json.MarshalIndent(model, "", "\t")
	if err != nil {
		log.Printf("At %s: %s\n", path, err.Error())
		return
	}
	jsonStr := SanitizeJsonArrayLineBreaks(string(jsonModel))
	if err := ioutil.WriteFile(path, []byte(jsonStr), 0644); err != nil {
		log.Printf("At %s: %s\n", path, err.Error())
	}
}
