// Package hwlocenv reads the handful of environment variables this
// module's contract (spec §6) recognizes as configuration input. There
// is no file- or CRD-based configuration layer: unlike the teacher
// daemon's dynamic pkg/config, a locality library's only external
// knobs are these env vars, read once at discovery time.
package hwlocenv

import "os"

const (
	// XMLVerbose toggles extra logging in an XML import/export layer.
	// The core does not implement XML import/export (spec §1
	// Non-goals); this flag is read and passed through so an external
	// XML layer built on top of this module can honor it consistently.
	XMLVerbose = "HWLOC_XML_VERBOSE"
	// SyntheticVerbose toggles extra logging for synthetic topology
	// construction, same caveat as XMLVerbose.
	SyntheticVerbose = "HWLOC_SYNTHETIC_VERBOSE"
	// Components forces discovery backend ordering. A "stop" entry
	// anywhere in the list disables every backend not named in it.
	Components = "HWLOC_COMPONENTS"
	// FSRoot points discovery backends at an alternate sysfs/procfs
	// root, for loading a topology captured on another machine.
	FSRoot = "HWLOC_FSROOT"
	// CPUIDPath points at a directory holding a dumped CPUID tree used
	// in place of the live CPUID instruction.
	CPUIDPath = "HWLOC_CPUID_PATH"
	// ThisSystem forces Topology's IsThisSystem flag on ("1") or off
	// ("0"), overriding what discovery backends would otherwise infer.
	ThisSystem = "HWLOC_THISSYSTEM"
	// DebugLoadTime opts into a timing printout of each discovery
	// phase.
	DebugLoadTime = "HWLOC_DEBUG_LOAD_TIME"
)

// Config is the parsed set of recognized environment inputs.
type Config struct {
	XMLVerbose       bool
	SyntheticVerbose bool
	Components       []string
	ComponentsStop   bool
	FSRoot           string
	CPUIDPath        string
	ThisSystem       *bool
	DebugLoadTime    bool
}

// Load reads the current process environment into a Config.
func Load() *Config {
	c := &Config{
		XMLVerbose:       boolEnv(XMLVerbose),
		SyntheticVerbose: boolEnv(SyntheticVerbose),
		FSRoot:           os.Getenv(FSRoot),
		CPUIDPath:        os.Getenv(CPUIDPath),
		DebugLoadTime:    boolEnv(DebugLoadTime),
	}

	if raw, ok := os.LookupEnv(Components); ok {
		names, stop := splitComponents(raw)
		c.Components = names
		c.ComponentsStop = stop
	}

	if raw, ok := os.LookupEnv(ThisSystem); ok {
		v := raw != "0" && raw != "" && raw != "false"
		c.ThisSystem = &v
	}

	return c
}

func boolEnv(name string) bool {
	v := os.Getenv(name)
	return v != "" && v != "0" && v != "false"
}

// splitComponents parses a comma-separated HWLOC_COMPONENTS value. A
// "stop" entry, wherever it appears, disables backends not named in the
// list.
func splitComponents(raw string) (names []string, stop bool) {
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				name := raw[start:i]
				if name == "stop" {
					stop = true
				} else {
					names = append(names, name)
				}
			}
			start = i + 1
		}
	}
	return names, stop
}
