package device

import (
	"strings"

	"golang.org/x/sys/cpu"
)

// cpuFeatures lists the instruction set extensions of the host
// that are relevant to 64-bit modular arithmetic.
func cpuFeatures() string {

	features := []struct {
		name string
		ok   bool
	}{
		{"adx", cpu.X86.HasADX},
		{"bmi2", cpu.X86.HasBMI2},
		{"avx2", cpu.X86.HasAVX2},
		{"avx512f", cpu.X86.HasAVX512F},
		{"asimd", cpu.ARM64.HasASIMD},
		{"sve", cpu.ARM64.HasSVE},
	}

	var names []string
	for _, f := range features {
		if f.ok {
			names = append(names, f.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ",")
}
