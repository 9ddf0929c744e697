package distrib

import (
	"math/rand"
	"testing"

	"github.com/go-hwloc/hwloc/pkg/bitmap"
	"github.com/go-hwloc/hwloc/pkg/object"
	"github.com/go-hwloc/hwloc/pkg/topology"
)

// buildSymmetricTopology builds nPackages x nCores x nPUs PUs, matching
// spec.md §8 scenario 1 when called with (2, 2, 2).
func buildSymmetricTopology(t *testing.T, nPackages, nCores, nPUs int) *topology.Topology {
	t.Helper()
	topo := topology.New(bitmap.NewFull(), bitmap.NewFull())
	root := topo.Root()

	pu := 0
	for p := 0; p < nPackages; p++ {
		pkgID := topo.InsertByParent(root, topo.AllocSetupObject(object.TypePackage, int64(p)))
		for c := 0; c < nCores; c++ {
			coreID := topo.InsertByParent(pkgID, topo.AllocSetupObject(object.TypeCore, int64(c)))
			for u := 0; u < nPUs; u++ {
				puObj := topo.AllocSetupObject(object.TypePU, int64(pu))
				puObj.CPUSet = bitmap.FromSlice(pu)
				puObj.NodeSet = bitmap.New()
				topo.InsertByParent(coreID, puObj)
				pu++
			}
		}
	}
	if err := topo.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return topo
}

func osIndices(topo *topology.Topology, ids []object.ID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = topo.Object(id).OSIndex
	}
	return out
}

func TestRoundRobinVisitsInLogicalOrderAndWraps(t *testing.T) {
	topo := buildSymmetricTopology(t, 2, 2, 2)
	it, err := RoundRobin(topo, topo.Root(), object.TypePU, 0, nil)
	if err != nil {
		t.Fatalf("RoundRobin: %v", err)
	}

	var ids []object.ID
	for i := 0; i < 10; i++ {
		id, _ := it.Next()
		ids = append(ids, id)
	}
	got := osIndices(topo, ids)
	want := []int64{0, 1, 2, 3, 4, 5, 6, 7, 0, 1}
	if !equalInt64(got, want) {
		t.Errorf("round robin = %v, want %v", got, want)
	}
}

func TestRoundRobinReverse(t *testing.T) {
	topo := buildSymmetricTopology(t, 2, 2, 2)
	it, err := RoundRobin(topo, topo.Root(), object.TypePU, FlagReverse, nil)
	if err != nil {
		t.Fatalf("RoundRobin: %v", err)
	}
	var ids []object.ID
	for i := 0; i < 9; i++ {
		id, _ := it.Next()
		ids = append(ids, id)
	}
	got := osIndices(topo, ids)
	want := []int64{7, 6, 5, 4, 3, 2, 1, 0, 7}
	if !equalInt64(got, want) {
		t.Errorf("reversed round robin = %v, want %v", got, want)
	}
}

func TestScatterMaximizesDistance(t *testing.T) {
	topo := buildSymmetricTopology(t, 2, 2, 2)
	it, err := Scatter(topo, topo.Root(), object.TypePU, 0, nil)
	if err != nil {
		t.Fatalf("Scatter: %v", err)
	}
	var ids []object.ID
	for i := 0; i < 8; i++ {
		id, _ := it.Next()
		ids = append(ids, id)
	}
	got := osIndices(topo, ids)
	want := []int64{0, 4, 2, 6, 1, 5, 3, 7}
	if !equalInt64(got, want) {
		t.Errorf("scatter = %v, want %v", got, want)
	}
}

func TestScatterVisitsEachPUExactlyOncePerCycle(t *testing.T) {
	topo := buildSymmetricTopology(t, 2, 2, 2)
	it, err := Scatter(topo, topo.Root(), object.TypePU, 0, nil)
	if err != nil {
		t.Fatalf("Scatter: %v", err)
	}
	seen := make(map[int64]bool)
	for i := 0; i < 8; i++ {
		id, _ := it.Next()
		seen[topo.Object(id).OSIndex] = true
	}
	if len(seen) != 8 {
		t.Errorf("expected one full cycle to visit all 8 PUs exactly once, saw %d distinct", len(seen))
	}
}

func TestNextReportsWrapAtEndOfCycle(t *testing.T) {
	topo := buildSymmetricTopology(t, 1, 1, 2)
	it, err := RoundRobin(topo, topo.Root(), object.TypePU, 0, nil)
	if err != nil {
		t.Fatalf("RoundRobin: %v", err)
	}
	_, more := it.Next()
	if !more {
		t.Errorf("first of 2 should report more=true")
	}
	_, more = it.Next()
	if more {
		t.Errorf("second of 2 should report the cycle wrapped (more=false)")
	}
}

func TestShuffleIsDeterministicGivenSameSeed(t *testing.T) {
	topo := buildSymmetricTopology(t, 2, 2, 2)
	run := func() []int64 {
		it, err := RoundRobin(topo, topo.Root(), object.TypePU, FlagShuffle, rand.NewSource(42))
		if err != nil {
			t.Fatalf("RoundRobin: %v", err)
		}
		var ids []object.ID
		for i := 0; i < 8; i++ {
			id, _ := it.Next()
			ids = append(ids, id)
		}
		return osIndices(topo, ids)
	}
	a, b := run(), run()
	if !equalInt64(a, b) {
		t.Errorf("same seed should reproduce the same shuffle: %v vs %v", a, b)
	}
}

func TestShuffleRequiresSource(t *testing.T) {
	topo := buildSymmetricTopology(t, 2, 2, 2)
	if _, err := RoundRobin(topo, topo.Root(), object.TypePU, FlagShuffle, nil); err == nil {
		t.Errorf("expected an error when FlagShuffle is set without a rand.Source")
	}
}

func TestAsymmetricSubtreeIsRejected(t *testing.T) {
	topo := topology.New(bitmap.NewFull(), bitmap.NewFull())
	root := topo.Root()

	pu := 0
	addCore := func(parent object.ID) {
		coreID := topo.InsertByParent(parent, topo.AllocSetupObject(object.TypeCore, int64(pu)))
		for u := 0; u < 2; u++ {
			puObj := topo.AllocSetupObject(object.TypePU, int64(pu))
			puObj.CPUSet = bitmap.FromSlice(pu)
			puObj.NodeSet = bitmap.New()
			topo.InsertByParent(coreID, puObj)
			pu++
		}
	}

	// pkg0 has 2 cores, pkg1 has 3 — an asymmetric Core arity under Package.
	pkg0 := topo.InsertByParent(root, topo.AllocSetupObject(object.TypePackage, 0))
	addCore(pkg0)
	addCore(pkg0)
	pkg1 := topo.InsertByParent(root, topo.AllocSetupObject(object.TypePackage, 1))
	addCore(pkg1)
	addCore(pkg1)
	addCore(pkg1)

	if err := topo.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err := TLeaf(topo, []object.ID{topo.Root()}, []object.Type{object.TypeCore, object.TypePackage}, 0, nil)
	if err == nil {
		t.Fatalf("expected an error for a package count that varies in core arity")
	}
}

func equalInt64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
