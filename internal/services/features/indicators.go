package features

import (
	"math"
	"sort"
)

// LogReturns computes r_t = ln(C_t / C_{t-1}). The first value and any
// non-positive price pair are NaN.
func LogReturns(close []float64) []float64 {
	out := nanSlice(len(close))
	for i := 1; i < len(close); i++ {
		prev, cur := close[i-1], close[i]
		if prev <= 0 || cur <= 0 || math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		out[i] = math.Log(cur / prev)
	}
	return out
}

// PctReturns computes C_t / C_{t-1} - 1.
func PctReturns(close []float64) []float64 {
	out := nanSlice(len(close))
	for i := 1; i < len(close); i++ {
		prev, cur := close[i-1], close[i]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		out[i] = cur/prev - 1
	}
	return out
}

// SMA is a trailing mean over exactly w defined values.
func SMA(x []float64, w int) []float64 {
	out := nanSlice(len(x))
	if w <= 0 {
		return out
	}
	sum, count := 0.0, 0
	for i, v := range x {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
		if i >= w {
			if old := x[i-w]; !math.IsNaN(old) {
				sum -= old
				count--
			}
		}
		if i >= w-1 && count == w {
			out[i] = sum / float64(w)
		}
	}
	return out
}

// RollingStd is a trailing standard deviation over w defined values with
// ddof degrees of freedom removed.
func RollingStd(x []float64, w, ddof int) []float64 {
	out := nanSlice(len(x))
	if w <= ddof {
		return out
	}
	for i := w - 1; i < len(x); i++ {
		sum, sum2 := 0.0, 0.0
		ok := true
		for _, v := range x[i-w+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
			sum2 += v * v
		}
		if !ok {
			continue
		}
		n := float64(w)
		mean := sum / n
		variance := (sum2 - n*mean*mean) / (n - float64(ddof))
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}

// EWM is an exponentially weighted mean without bias adjustment:
// e_t = alpha*x_t + (1-alpha)*e_{t-1}, seeded with the first defined value.
// Undefined inputs carry the previous value forward.
func EWM(x []float64, alpha float64) []float64 {
	out := nanSlice(len(x))
	prev := math.NaN()
	for i, v := range x {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(prev):
			prev = v
		default:
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// EMA is EWM with alpha = 2/(span+1).
func EMA(x []float64, span int) []float64 {
	return EWM(x, 2/(float64(span)+1))
}

// RSI is Wilder's relative strength index.
func RSI(close []float64, period int) []float64 {
	n := len(close)
	gain, loss := nanSlice(n), nanSlice(n)
	for i := 1; i < n; i++ {
		d := close[i] - close[i-1]
		if math.IsNaN(d) {
			continue
		}
		gain[i] = math.Max(d, 0)
		loss[i] = math.Max(-d, 0)
	}
	ag := EWM(gain, 1/float64(period))
	al := EWM(loss, 1/float64(period))
	out := nanSlice(n)
	for i := range out {
		if math.IsNaN(ag[i]) || math.IsNaN(al[i]) {
			continue
		}
		rs := ag[i] / (al[i] + 1e-12)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// TrueRange is max(|H-L|, |H-C_prev|, |L-C_prev|), ignoring undefined legs.
func TrueRange(high, low, close []float64) []float64 {
	out := nanSlice(len(close))
	for i := range close {
		prev := math.NaN()
		if i > 0 {
			prev = close[i-1]
		}
		best := math.NaN()
		for _, v := range []float64{math.Abs(high[i] - low[i]), math.Abs(high[i] - prev), math.Abs(low[i] - prev)} {
			if !math.IsNaN(v) && (math.IsNaN(best) || v > best) {
				best = v
			}
		}
		out[i] = best
	}
	return out
}

// Lag shifts x forward by k rows.
func Lag(x []float64, k int) []float64 {
	out := nanSlice(len(x))
	for i := k; i < len(x); i++ {
		if i-k >= 0 {
			out[i] = x[i-k]
		}
	}
	return out
}

// RealizedVolatility is the annualised trailing standard deviation of
// returns over window bars.
func RealizedVolatility(returns []float64, window int, barsPerYear float64) []float64 {
	out := RollingStd(returns, window, 1)
	scale := math.Sqrt(barsPerYear)
	for i, v := range out {
		if !math.IsNaN(v) {
			out[i] = v * scale
		}
	}
	return out
}

// Winsorize clips x to its [q, 1-q] quantiles when it holds more than
// minDefined defined values. Quantiles interpolate linearly between order
// statistics.
func Winsorize(x []float64, q float64, minDefined int) []float64 {
	defined := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	out := make([]float64, len(x))
	copy(out, x)
	if len(defined) <= minDefined {
		return out
	}
	sort.Float64s(defined)
	lo, hi := quantile(defined, q), quantile(defined, 1-q)
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		out[i] = math.Min(hi, math.Max(lo, v))
	}
	return out
}

func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	i := int(math.Floor(pos))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
