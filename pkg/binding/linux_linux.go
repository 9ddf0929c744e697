//go:build linux

package binding

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux memory policies, from <linux/mempolicy.h>. x/sys/unix does not
// name these; set_mempolicy(2)/get_mempolicy(2) also aren't wrapped,
// so both go through unix.Syscall directly.
const (
	mpolDefault    = 0
	mpolPreferred  = 1
	mpolBind       = 2
	mpolInterleave = 3
)

func init() {
	Register(linuxHooks{})
}

type linuxHooks struct{}

func (linuxHooks) SetCPUBind(pid int, thread bool, cpus []int, flags Flag) error {
	var set unix.CPUSet
	for _, c := range cpus {
		set.Set(c)
	}
	target := resolveTarget(pid, thread)
	if flags&FlagProcess != 0 {
		return setAffinityAllTasks(target, &set)
	}
	return unix.SchedSetaffinity(target, &set)
}

func (linuxHooks) GetCPUBind(pid int, thread bool, flags Flag) ([]int, error) {
	var set unix.CPUSet
	target := resolveTarget(pid, thread)
	if err := unix.SchedGetaffinity(target, &set); err != nil {
		return nil, err
	}
	cpus := make([]int, 0, set.Count())
	for i := 0; i < len(set)*64; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}

// resolveTarget maps a (pid, thread) pair to the id SchedSetaffinity
// expects: 0 means "the calling thread" to the kernel, which is what
// we want for the no-pid/no-tid case regardless of thread.
func resolveTarget(pid int, thread bool) int {
	if pid != 0 {
		return pid
	}
	if thread {
		return unix.Gettid()
	}
	return 0
}

// setAffinityAllTasks applies set to every task (thread) of the
// process, since sched_setaffinity on the pid alone only binds the
// thread group leader.
func setAffinityAllTasks(pid int, set *unix.CPUSet) error {
	if pid == 0 {
		pid = unix.Getpid()
	}
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return unix.SchedSetaffinity(pid, set)
	}
	var firstErr error
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if err := unix.SchedSetaffinity(tid, set); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (linuxHooks) GetLastCPULocation(pid int, thread bool) (int, error) {
	if pid == 0 {
		pid = unix.Getpid()
		if thread {
			pid = unix.Gettid()
		}
	}
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 4096)
	if !sc.Scan() {
		return 0, fmt.Errorf("binding: empty /proc/%d/stat", pid)
	}
	// Field 2 (comm) may itself contain spaces/parens; split on the
	// closing paren and then index fields from there.
	line := sc.Text()
	rp := strings.LastIndex(line, ")")
	if rp < 0 {
		return 0, fmt.Errorf("binding: unparsable /proc/%d/stat", pid)
	}
	fields := strings.Fields(line[rp+1:])
	// Field 3 (state) is fields[0] here; processor is field 39 overall,
	// i.e. fields[39-3] = fields[36].
	const processorFieldFromState = 36
	if len(fields) <= processorFieldFromState {
		return 0, fmt.Errorf("binding: /proc/%d/stat missing processor field", pid)
	}
	cpu, err := strconv.Atoi(fields[processorFieldFromState])
	if err != nil {
		return 0, err
	}
	return cpu, nil
}

func (linuxHooks) SetMemBind(nodes []int, policy MemPolicy, flags Flag) error {
	mode, err := mempolicyMode(policy)
	if err != nil {
		return err
	}
	mask := nodemaskOf(nodes)
	maxnode := uintptr(len(mask)*64 + 1)
	var ptr unsafe.Pointer
	if len(mask) > 0 {
		ptr = unsafe.Pointer(&mask[0])
	}
	_, _, errno := unix.Syscall(unix.SYS_SET_MEMPOLICY, uintptr(mode), uintptr(ptr), maxnode)
	if errno != 0 {
		return errno
	}
	return nil
}

func (linuxHooks) GetMemBind(flags Flag) ([]int, MemPolicy, error) {
	var mode int
	mask := make([]uint64, 16)
	maxnode := uintptr(len(mask) * 64)
	modePtr := unsafe.Pointer(&mode)
	maskPtr := unsafe.Pointer(&mask[0])
	_, _, errno := unix.Syscall6(unix.SYS_GET_MEMPOLICY, uintptr(modePtr), uintptr(maskPtr), maxnode, 0, 0, 0)
	if errno != 0 {
		return nil, PolicyDefault, errno
	}
	return nodesOf(mask), policyOf(mode), nil
}

func mempolicyMode(policy MemPolicy) (int, error) {
	switch policy {
	case PolicyDefault, PolicyFirstTouch:
		return mpolDefault, nil
	case PolicyBind:
		return mpolBind, nil
	case PolicyInterleave:
		return mpolInterleave, nil
	case PolicyNextTouch:
		return 0, fmt.Errorf("binding: next-touch membind has no Linux set_mempolicy equivalent")
	default:
		return 0, fmt.Errorf("binding: unknown membind policy %d", policy)
	}
}

func policyOf(mode int) MemPolicy {
	switch mode {
	case mpolBind:
		return PolicyBind
	case mpolInterleave:
		return PolicyInterleave
	case mpolPreferred:
		return PolicyFirstTouch
	default:
		return PolicyDefault
	}
}

func nodemaskOf(nodes []int) []uint64 {
	words := 16
	for _, n := range nodes {
		if w := n/64 + 1; w > words {
			words = w
		}
	}
	mask := make([]uint64, words)
	for _, n := range nodes {
		mask[n/64] |= 1 << uint(n%64)
	}
	return mask
}

func nodesOf(mask []uint64) []int {
	var nodes []int
	for w, word := range mask {
		for b := 0; b < 64; b++ {
			if word&(1<<uint(b)) != 0 {
				nodes = append(nodes, w*64+b)
			}
		}
	}
	return nodes
}
