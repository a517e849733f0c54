package raptor

import (
	"reflect"
	"testing"
)

func blob(center []float32, offsets ...float32) [][]float32 {
	out := make([][]float32, len(offsets))
	for i, off := range offsets {
		v := append([]float32(nil), center...)
		v[0] += off
		out[i] = v
	}
	return out
}

func TestSingleVectorSingleGroup(t *testing.T) {
	groups, err := clusterVectors([][]float32{{1, 0, 0, 0}}, 2, 50)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(groups) != 1 || len(groups[0]) != 1 || groups[0][0] != 0 {
		t.Fatalf("expected single group [0], got %v", groups)
	}
}

func TestTwoSeparatedBlobs(t *testing.T) {
	a := blob([]float32{0, 0, 0, 0}, 0, 0.05, 0.1, -0.05, 0.02, -0.08)
	b := blob([]float32{10, 10, 10, 10}, 0, 0.05, 0.1, -0.05, 0.02, -0.08)
	vectors := append(a, b...)

	groups, err := clusterVectors(vectors, 2, 5)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 clusters, got %d: %v", len(groups), groups)
	}

	// Each group must contain only indices from one blob.
	for _, g := range groups {
		firstIsA := g[0] < len(a)
		for _, idx := range g {
			if (idx < len(a)) != firstIsA {
				t.Fatalf("blob membership mixed in group %v", g)
			}
		}
	}
}

func TestMaxKCappedAtN(t *testing.T) {
	vectors := [][]float32{{0, 0}, {5, 5}, {10, 10}}
	groups, err := clusterVectors(vectors, 1, 50)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total != 3 {
		t.Fatalf("expected every index assigned once, got %v", groups)
	}
	if len(groups) > 3 {
		t.Fatalf("more clusters than points: %v", groups)
	}
}

func TestStallGuardForcesSingleCluster(t *testing.T) {
	// min_k == max_k == n yields all singletons, which the guard collapses.
	vectors := [][]float32{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	groups, err := clusterVectors(vectors, 4, 4)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected stall guard to force one cluster, got %v", groups)
	}
	if !reflect.DeepEqual(groups[0], []int{0, 1, 2, 3}) {
		t.Fatalf("forced cluster must contain all indices in order, got %v", groups[0])
	}
}

func TestClusteringDeterministic(t *testing.T) {
	a := blob([]float32{0, 0, 0, 0}, 0, 0.1, -0.1, 0.2, -0.2, 0.3)
	b := blob([]float32{8, 8, 8, 8}, 0, 0.1, -0.1, 0.2, -0.2, 0.3)
	vectors := append(a, b...)

	first, err := clusterVectors(vectors, 2, 4)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := clusterVectors(vectors, 2, 4)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("clustering not deterministic:\n%v\n%v", first, second)
	}
}

func TestRaggedInputRejected(t *testing.T) {
	_, err := clusterVectors([][]float32{{1, 2}, {1, 2, 3}}, 1, 2)
	if err == nil {
		t.Fatal("expected ragged input to fail")
	}
}

func TestProjectionPreservesSeparation(t *testing.T) {
	// 16 points in 32 dims triggers the PCA path.
	var vectors [][]float32
	for i := 0; i < 8; i++ {
		v := make([]float32, 32)
		v[0] = float32(i) * 0.01
		vectors = append(vectors, v)
	}
	for i := 0; i < 8; i++ {
		v := make([]float32, 32)
		v[0] = 20 + float32(i)*0.01
		v[1] = 20
		vectors = append(vectors, v)
	}

	groups, err := clusterVectors(vectors, 2, 4)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 clusters after projection, got %v", groups)
	}
}

func TestSingletonComponentsDoNotWinModelSelection(t *testing.T) {
	// Two tight 8-point blobs far apart in 32 dims. A collapsed component's
	// floored variance must not let k=3 or k=4 outscore the true k=2.
	var vectors [][]float32
	for i := 0; i < 8; i++ {
		v := make([]float32, 32)
		v[0] = float32(i) * 0.01
		vectors = append(vectors, v)
	}
	for i := 0; i < 8; i++ {
		v := make([]float32, 32)
		v[0] = 20 + float32(i)*0.01
		v[1] = 20
		vectors = append(vectors, v)
	}

	groups, err := clusterVectors(vectors, 2, 4)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 clusters, got %d: %v", len(groups), groups)
	}
	for _, g := range groups {
		if len(g) < 2 {
			t.Fatalf("singleton cluster selected: %v", groups)
		}
		firstIsA := g[0] < 8
		for _, idx := range g {
			if (idx < 8) != firstIsA {
				t.Fatalf("blob membership mixed in group %v", g)
			}
		}
	}
}
