package raptor

import (
	"math"

	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
)

const (
	projectionDims    = 8
	projectionMinRows = 12
	emMaxIters        = 60
	emTolerance       = 1e-4
	varianceFloor     = 1e-6
)

// clusterVectors groups vectors with a diagonal Gaussian mixture, choosing k
// in [minK, min(maxK, n)] by BIC. Each input index lands in exactly one
// group. Degenerate outcomes (all singletons, numerical failure) collapse to
// a single group so the build loop can terminate by the root rule.
func clusterVectors(vectors [][]float32, minK, maxK int) ([][]int, error) {
	n := len(vectors)
	if n == 0 {
		return nil, apierr.New(apierr.KindClustering, "empty_input", "clustering requires at least one vector")
	}
	if n == 1 {
		return [][]int{{0}}, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, apierr.New(apierr.KindClustering, "ragged_input", "clustering vectors differ in dimension").
				WithContext(map[string]any{"index": i, "expected": dim, "got": len(v)})
		}
	}

	if minK < 1 {
		minK = 1
	}
	if maxK < minK {
		maxK = minK
	}
	if maxK > n {
		maxK = n
	}
	if minK > n {
		minK = n
	}

	points := toFloat64(vectors)
	if n >= projectionMinRows && dim > projectionDims {
		points = projectPCA(points, projectionDims)
	}

	bestBIC := math.Inf(1)
	var bestAssign []int
	bestK := 0
	for k := minK; k <= maxK; k++ {
		assign, logLik, ok := fitGMM(points, k)
		if !ok {
			continue
		}
		// A component that collapses onto a single point hits the variance
		// floor and inflates the likelihood past any parameter penalty.
		// Such fits are degenerate, not better models; skip them.
		if k > 1 && hasDegenerateComponent(assign, k) {
			continue
		}
		d := len(points[0])
		params := float64(k*(2*d) + (k - 1))
		bic := params*math.Log(float64(n)) - 2*logLik
		// Strict improvement keeps ties on the smaller k.
		if bic < bestBIC {
			bestBIC = bic
			bestAssign = assign
			bestK = k
		}
	}

	if bestAssign == nil {
		// Every k failed or degenerated: stall-guard override.
		return singleGroup(n), nil
	}

	groups := make([][]int, bestK)
	for idx, c := range bestAssign {
		groups[c] = append(groups[c], idx)
	}
	nonEmpty := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}

	// Stall guard: no reduction means the recursion would never terminate.
	if len(nonEmpty) >= n {
		return singleGroup(n), nil
	}
	return nonEmpty, nil
}

func singleGroup(n int) [][]int {
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return [][]int{all}
}

// hasDegenerateComponent reports whether any of the k components captured
// fewer than two points under the hard assignment.
func hasDegenerateComponent(assign []int, k int) bool {
	counts := make([]int, k)
	for _, c := range assign {
		counts[c]++
	}
	for _, n := range counts {
		if n < 2 {
			return true
		}
	}
	return false
}

func toFloat64(vectors [][]float32) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		row := make([]float64, len(v))
		for j, f := range v {
			row[j] = float64(f)
		}
		out[i] = row
	}
	return out
}

// fitGMM runs EM for a k-component diagonal-covariance mixture with
// deterministic farthest-point seeding. Returns hard assignments and the
// final log-likelihood.
func fitGMM(points [][]float64, k int) ([]int, float64, bool) {
	n := len(points)
	d := len(points[0])
	if k < 1 || k > n {
		return nil, 0, false
	}

	means := seedMeans(points, k)
	variances := make([][]float64, k)
	globalVar := globalVariance(points)
	for c := 0; c < k; c++ {
		variances[c] = append([]float64(nil), globalVar...)
	}
	weights := make([]float64, k)
	for c := range weights {
		weights[c] = 1.0 / float64(k)
	}

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}

	prevLogLik := math.Inf(-1)
	logLik := 0.0

	for iter := 0; iter < emMaxIters; iter++ {
		// E step.
		logLik = 0
		for i, p := range points {
			logs := make([]float64, k)
			for c := 0; c < k; c++ {
				logs[c] = math.Log(weights[c]) + logGaussDiag(p, means[c], variances[c])
			}
			lse := logSumExp(logs)
			if math.IsNaN(lse) || math.IsInf(lse, 0) {
				return nil, 0, false
			}
			logLik += lse
			for c := 0; c < k; c++ {
				resp[i][c] = math.Exp(logs[c] - lse)
			}
		}

		// M step.
		for c := 0; c < k; c++ {
			var nc float64
			for i := 0; i < n; i++ {
				nc += resp[i][c]
			}
			if nc < 1e-10 {
				return nil, 0, false
			}
			weights[c] = nc / float64(n)
			for j := 0; j < d; j++ {
				var mu float64
				for i := 0; i < n; i++ {
					mu += resp[i][c] * points[i][j]
				}
				mu /= nc
				var va float64
				for i := 0; i < n; i++ {
					diff := points[i][j] - mu
					va += resp[i][c] * diff * diff
				}
				va /= nc
				if va < varianceFloor {
					va = varianceFloor
				}
				means[c][j] = mu
				variances[c][j] = va
			}
		}

		if math.Abs(logLik-prevLogLik) < emTolerance {
			break
		}
		prevLogLik = logLik
	}

	assign := make([]int, n)
	for i := 0; i < n; i++ {
		best := 0
		bestResp := -1.0
		for c := 0; c < k; c++ {
			if resp[i][c] > bestResp {
				bestResp = resp[i][c]
				best = c
			}
		}
		assign[i] = best
	}
	return assign, logLik, true
}

// seedMeans starts with the first point and repeatedly picks the point
// farthest from every chosen mean. Deterministic for a given input order.
func seedMeans(points [][]float64, k int) [][]float64 {
	means := make([][]float64, 0, k)
	means = append(means, append([]float64(nil), points[0]...))
	for len(means) < k {
		bestIdx := 0
		bestDist := -1.0
		for i := range points {
			d := math.Inf(1)
			for _, m := range means {
				dist := squaredDistance(points[i], m)
				if dist < d {
					d = dist
				}
			}
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		means = append(means, append([]float64(nil), points[bestIdx]...))
	}
	return means
}

func globalVariance(points [][]float64) []float64 {
	n := len(points)
	d := len(points[0])
	mean := make([]float64, d)
	for _, p := range points {
		for j, x := range p {
			mean[j] += x
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	va := make([]float64, d)
	for _, p := range points {
		for j, x := range p {
			diff := x - mean[j]
			va[j] += diff * diff
		}
	}
	for j := range va {
		va[j] /= float64(n)
		if va[j] < varianceFloor {
			va[j] = varianceFloor
		}
	}
	return va
}

func logGaussDiag(p, mean, variance []float64) float64 {
	sum := 0.0
	for j := range p {
		diff := p[j] - mean[j]
		sum += diff*diff/variance[j] + math.Log(2*math.Pi*variance[j])
	}
	return -0.5 * sum
}

func logSumExp(logs []float64) float64 {
	max := math.Inf(-1)
	for _, l := range logs {
		if l > max {
			max = l
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	sum := 0.0
	for _, l := range logs {
		sum += math.Exp(l - max)
	}
	return max + math.Log(sum)
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// projectPCA maps points onto their top principal components via
// deterministic power iteration with deflation.
func projectPCA(points [][]float64, dims int) [][]float64 {
	n := len(points)
	d := len(points[0])
	if dims >= d {
		return points
	}

	centered := make([][]float64, n)
	mean := make([]float64, d)
	for _, p := range points {
		for j, x := range p {
			mean[j] += x
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	for i, p := range points {
		row := make([]float64, d)
		for j, x := range p {
			row[j] = x - mean[j]
		}
		centered[i] = row
	}

	components := make([][]float64, 0, dims)
	work := make([][]float64, n)
	for i := range centered {
		work[i] = append([]float64(nil), centered[i]...)
	}

	for c := 0; c < dims; c++ {
		vec := make([]float64, d)
		vec[c%d] = 1
		for iter := 0; iter < 50; iter++ {
			// v <- X^T X v, normalized.
			next := make([]float64, d)
			for i := 0; i < n; i++ {
				dot := 0.0
				for j := 0; j < d; j++ {
					dot += work[i][j] * vec[j]
				}
				for j := 0; j < d; j++ {
					next[j] += dot * work[i][j]
				}
			}
			norm := 0.0
			for _, x := range next {
				norm += x * x
			}
			norm = math.Sqrt(norm)
			if norm < 1e-12 {
				break
			}
			for j := range next {
				next[j] /= norm
			}
			vec = next
		}
		components = append(components, vec)

		// Deflate: remove the captured component from the data.
		for i := 0; i < n; i++ {
			dot := 0.0
			for j := 0; j < d; j++ {
				dot += work[i][j] * vec[j]
			}
			for j := 0; j < d; j++ {
				work[i][j] -= dot * vec[j]
			}
		}
	}

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, dims)
		for c := 0; c < dims; c++ {
			dot := 0.0
			for j := 0; j < d; j++ {
				dot += centered[i][j] * components[c][j]
			}
			row[c] = dot
		}
		out[i] = row
	}
	return out
}
