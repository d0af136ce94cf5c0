package main

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// workerBufferBytes is what one CPU worker holds while generating a nonce.
const workerBufferBytes = nonceSize + 16

type hasherDeviceReport struct {
	CPUBrand        string   `json:"cpu_brand"`
	PhysicalCores   int      `json:"physical_cores"`
	LogicalCores    int      `json:"logical_cores"`
	SIMD            string   `json:"simd"`
	Threads         int      `json:"threads"`
	AvailableMemory uint64   `json:"available_memory"`
	GPUsIgnored     []string `json:"gpus_ignored,omitempty"`
}

func detectSIMD() string {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return "AVX512F"
	case cpuid.CPU.Supports(cpuid.AVX2):
		return "AVX2"
	case cpuid.CPU.Supports(cpuid.AVX):
		return "AVX"
	case cpuid.CPU.Supports(cpuid.SSE2):
		return "SSE2"
	case cpuid.CPU.Supports(cpuid.ASIMD):
		return "NEON"
	default:
		return "none"
	}
}

// detectHasherDevices works out how many CPU workers to run. An explicit
// cpu_threads wins; otherwise one worker per physical core. The count is
// lowered when available memory cannot hold every worker's buffer.
func detectHasherDevices(cfg Config) hasherDeviceReport {
	r := hasherDeviceReport{
		CPUBrand:     strings.TrimSpace(cpuid.CPU.BrandName),
		LogicalCores: runtime.NumCPU(),
		SIMD:         detectSIMD(),
		GPUsIgnored:  cfg.GPUDevices,
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		r.PhysicalCores = n
	} else if cpuid.CPU.PhysicalCores > 0 {
		r.PhysicalCores = cpuid.CPU.PhysicalCores
	} else {
		r.PhysicalCores = r.LogicalCores
	}

	r.Threads = cfg.CPUThreads
	if r.Threads <= 0 {
		r.Threads = r.PhysicalCores
	}
	if r.Threads <= 0 {
		r.Threads = 1
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		r.AvailableMemory = vm.Available
		if fit := int(vm.Available / workerBufferBytes); fit > 0 && fit < r.Threads {
			logger.Warn("not enough free memory for all cpu workers", "requested", r.Threads, "fits", fit)
			r.Threads = fit
		}
	}
	return r
}

func (r hasherDeviceReport) log() {
	brand := r.CPUBrand
	if brand == "" {
		brand = "unknown"
	}
	logger.Info("cpu",
		"brand", brand,
		"cores", r.PhysicalCores,
		"threads", r.LogicalCores,
		"simd", r.SIMD,
	)
	logger.Info("hashing backend", "type", "cpu", "workers", r.Threads, "nonce_buffer", humanBytes(workerBufferBytes))
	if len(r.GPUsIgnored) > 0 {
		logger.Warn("gpu devices configured but this build has no gpu kernels; mining on cpu", "devices", strings.Join(r.GPUsIgnored, ","))
	}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + "B"
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB"}
	v := float64(n)
	i := -1
	for v >= unit && i < len(suffixes)-1 {
		v /= unit
		i++
	}
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 2, 64), "0"), ".") + suffixes[i]
}
