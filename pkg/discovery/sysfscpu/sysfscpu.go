// Package sysfscpu implements a discovery.Backend that reads CPU,
// cache, and NUMA node topology from the Linux sysfs device tree
// (devices/system/cpu, devices/system/node), the way the teacher's
// pkg/sysfs discoverCPU/discoverNode/discoverCache walk the same
// files. Unlike that code this backend talks to pkg/topology directly
// (InsertByParent/InsertByCPUSet) instead of building its own
// idset/cpu/node/cache structs first and translating them afterward.
package sysfscpu

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/discovery"
	"github.com/go-hwloc/hwloc/pkg/log"
	"github.com/go-hwloc/hwloc/pkg/object"
	"github.com/go-hwloc/hwloc/pkg/topology"
)

var backendLog = log.Get("sysfscpu")

const (
	cpuPath  = "sys/devices/system/cpu"
	nodePath = "sys/devices/system/node"
)

// Backend discovers CPU and NUMA topology under fsroot (HWLOC_FSROOT;
// "/" for the live system).
type Backend struct {
	fsroot   string
	priority int
}

// NewBackend returns a Backend rooted at fsroot ("" means the live
// system's "/").
func NewBackend(fsroot string) *Backend {
	if fsroot == "" {
		fsroot = "/"
	}
	return &Backend{fsroot: fsroot, priority: 50}
}

func (b *Backend) Name() string                     { return "sysfscpu" }
func (b *Backend) ComponentType() discovery.ComponentType { return discovery.ComponentCPU }
func (b *Backend) Phases() discovery.Phase          { return discovery.PhaseCPU | discovery.PhaseMemory }
func (b *Backend) Excludes() discovery.Phase        { return discovery.PhaseCPU | discovery.PhaseMemory }
func (b *Backend) Priority() int                    { return b.priority }

// Discover implements discovery.Backend.
func (b *Backend) Discover(topo *topology.Topology, phase discovery.Phase) (discovery.Result, error) {
	switch phase {
	case discovery.PhaseCPU:
		return b.discoverCPUs(topo)
	case discovery.PhaseMemory:
		return b.discoverNUMANodes(topo)
	default:
		return discovery.Unchanged, nil
	}
}

func (b *Backend) path(parts ...string) string {
	return filepath.Join(append([]string{b.fsroot}, parts...)...)
}

func (b *Backend) discoverCPUs(topo *topology.Topology) (discovery.Result, error) {
	entries, err := filepath.Glob(filepath.Join(b.path(cpuPath), "cpu[0-9]*"))
	if err != nil {
		return discovery.Unchanged, errors.Wrap(err, "sysfscpu: glob cpu entries")
	}
	sort.Strings(entries)

	packages := map[int64]object.ID{}
	cores := map[[2]int64]object.ID{}
	seenCaches := map[string]object.ID{}
	modified := false

	for _, entry := range entries {
		idx, err := enumeratedID(entry)
		if err != nil {
			backendLog.Warn("skipping %q: %v", entry, err)
			continue
		}
		if online, err := readString(filepath.Join(entry, "online")); err == nil && online == "0" {
			continue
		}

		pkgID, err := readInt(filepath.Join(entry, "topology", "physical_package_id"))
		if err != nil {
			pkgID = 0
		}
		coreID, err := readInt(filepath.Join(entry, "topology", "core_id"))
		if err != nil {
			coreID = idx
		}

		pkgObjID, ok := packages[pkgID]
		if !ok {
			pkg := topo.AllocSetupObject(object.TypePackage, pkgID)
			pkgObjID = topo.InsertByParent(topo.Root(), pkg)
			packages[pkgID] = pkgObjID
			modified = true
		}

		coreKey := [2]int64{pkgID, coreID}
		coreObjID, ok := cores[coreKey]
		if !ok {
			core := topo.AllocSetupObject(object.TypeCore, coreID)
			coreObjID = topo.InsertByParent(pkgObjID, core)
			cores[coreKey] = coreObjID
			modified = true
		}

		pu := topo.AllocSetupObject(object.TypePU, idx)
		pu.CPUSet = bitmap.FromSlice(int(idx))
		pu.NodeSet = bitmap.New()
		topo.InsertByParent(coreObjID, pu)
		modified = true

		if err := b.discoverCaches(topo, entry, seenCaches); err != nil {
			backendLog.Warn("cache discovery failed for %q: %v", entry, err)
		}
	}

	if !modified {
		return discovery.Unchanged, nil
	}
	return discovery.Modified, nil
}

// discoverCaches reads every cache/index* entry under a CPU's sysfs
// directory, inserting one Cache object per distinct cache id (caches
// shared by several CPUs are deduplicated by their sysfs "id" and
// inserted at the cpuset-covering ancestor, since an L3 cache
// typically spans more than one core).
func (b *Backend) discoverCaches(topo *topology.Topology, cpuEntry string, seen map[string]object.ID) error {
	indices, err := filepath.Glob(filepath.Join(cpuEntry, "cache", "index[0-9]*"))
	if err != nil || len(indices) == 0 {
		return nil
	}

	for _, idxPath := range indices {
		id, err := readString(filepath.Join(idxPath, "id"))
		if err != nil {
			continue
		}
		key := cpuEntry + ":" + filepath.Base(idxPath)
		if _, ok := seen[id]; ok && id != "" {
			continue
		}

		level, err := readInt(filepath.Join(idxPath, "level"))
		if err != nil {
			continue
		}
		kind, _ := readString(filepath.Join(idxPath, "type"))
		typ := cacheType(int(level), kind)

		shared, err := readString(filepath.Join(idxPath, "shared_cpu_list"))
		if err != nil {
			continue
		}
		cpuset, err := parseCPUList(shared)
		if err != nil || cpuset.IsEmpty() {
			continue
		}

		cache := topo.AllocSetupObject(typ, -1)
		cache.CPUSet = cpuset
		cache.Attrs.Cache.Depth = int(level)
		cache.Attrs.Cache.DataType = cacheDataType(kind)
		if size, err := readSizeBytes(filepath.Join(idxPath, "size")); err == nil {
			cache.Attrs.Cache.Size = size
		}
		if line, err := readInt(filepath.Join(idxPath, "coherency_line_size")); err == nil {
			cache.Attrs.Cache.LineSize = uint32(line)
		}
		if ways, err := readInt(filepath.Join(idxPath, "ways_of_associativity")); err == nil {
			cache.Attrs.Cache.Associativity = int(ways)
		} else {
			cache.Attrs.Cache.Associativity = 0
		}

		cacheID, err := topo.InsertByCPUSet(cache)
		if err != nil {
			backendLog.Debug("cache %s not inserted: %v", key, err)
			continue
		}
		if id != "" {
			seen[id] = cacheID
		}
	}
	return nil
}

func (b *Backend) discoverNUMANodes(topo *topology.Topology) (discovery.Result, error) {
	entries, err := filepath.Glob(filepath.Join(b.path(nodePath), "node[0-9]*"))
	if err != nil {
		return discovery.Unchanged, errors.Wrap(err, "sysfscpu: glob node entries")
	}
	sort.Strings(entries)
	if len(entries) == 0 {
		return discovery.Unchanged, nil
	}

	modified := false
	for _, entry := range entries {
		idx, err := enumeratedID(entry)
		if err != nil {
			continue
		}

		cpulist, _ := readString(filepath.Join(entry, "cpulist"))
		cpuset, _ := parseCPUList(cpulist)

		node := topo.AllocSetupObject(object.TypeNUMANode, idx)
		node.CPUSet = cpuset
		node.NodeSet = bitmap.FromSlice(int(idx))
		if size, err := readMemInfoTotal(filepath.Join(entry, "meminfo")); err == nil {
			node.Attrs.NUMANode.LocalMemory = size
		}

		var nodeObjID object.ID
		if cpuset != nil && !cpuset.IsEmpty() {
			nodeObjID, err = topo.InsertByCPUSet(node)
			if err != nil {
				nodeObjID = topo.InsertByParent(topo.Root(), node)
			}
		} else {
			nodeObjID = topo.InsertByParent(topo.Root(), node)
		}
		_ = nodeObjID
		modified = true
	}

	if !modified {
		return discovery.Unchanged, nil
	}
	return discovery.Modified, nil
}

// GetObjCPUSet implements discovery.CPUSetLookup: hint is a sysfs
// device path whose local_cpulist gives the PCI/IO locality other
// backends ask this one to resolve.
func (b *Backend) GetObjCPUSet(hint string) (*bitmap.Bitmap, bool) {
	raw, err := readString(filepath.Join(hint, "local_cpulist"))
	if err != nil {
		return nil, false
	}
	cpuset, err := parseCPUList(raw)
	if err != nil {
		return nil, false
	}
	return cpuset, true
}

func cacheType(level int, kind string) object.Type {
	instruction := strings.EqualFold(kind, "Instruction")
	switch level {
	case 1:
		if instruction {
			return object.TypeL1iCache
		}
		return object.TypeL1Cache
	case 2:
		if instruction {
			return object.TypeL2iCache
		}
		return object.TypeL2Cache
	case 3:
		if instruction {
			return object.TypeL3iCache
		}
		return object.TypeL3Cache
	case 4:
		return object.TypeL4Cache
	default:
		return object.TypeL5Cache
	}
}

func cacheDataType(kind string) object.CacheDataType {
	switch {
	case strings.EqualFold(kind, "Data"):
		return object.CacheData
	case strings.EqualFold(kind, "Instruction"):
		return object.CacheInstruction
	default:
		return object.CacheUnified
	}
}

func enumeratedID(path string) (int64, error) {
	base := filepath.Base(path)
	i := len(base)
	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}
	return strconv.ParseInt(base[i:], 10, 64)
}

func readString(path string) (string, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func readInt(path string) (int64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

// readSizeBytes parses sysfs size entries like "32K" into bytes.
func readSizeBytes(path string) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1 << 10
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		mult = 1 << 30
		s = strings.TrimSuffix(s, "G")
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return v * mult, nil
}

func readMemInfoTotal(path string) (uint64, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 4 && fields[2] == "MemTotal:" {
			kb, err := strconv.ParseUint(fields[3], 10, 64)
			if err != nil {
				return 0, err
			}
			return kb * 1024, nil
		}
	}
	return 0, fmt.Errorf("sysfscpu: MemTotal not found in %s", path)
}

// parseCPUList parses a comma-separated list of CPU ids and ranges
// ("0-3,8,10-11"), the format sysfs uses for cpulist/shared_cpu_list
// entries.
func parseCPUList(s string) (*bitmap.Bitmap, error) {
	b := bitmap.New()
	s = strings.TrimSpace(s)
	if s == "" {
		return b, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dash := strings.IndexByte(part, '-'); dash >= 0 {
			lo, err := strconv.Atoi(part[:dash])
			if err != nil {
				return nil, err
			}
			hi, err := strconv.Atoi(part[dash+1:])
			if err != nil {
				return nil, err
			}
			b.SetRange(lo, hi)
		} else {
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			b.Set(v)
		}
	}
	return b, nil
}
