// Package stats implements the statistical inference formulas the
// experiment analytics pipeline runs over per-user aggregates: a
// delta-method z-test and Welch's t-test for arm comparison, sample-ratio-
// mismatch detection, winsorization and outlier exclusion, a closed-form
// Bayesian Beta-Binomial comparison, guard rails, sample-size/power
// estimation, CUPED variance reduction, and interleaving preference
// scoring. Every function operates on owned slices and never mutates
// shared state (winsorize is the one exception, and it is documented as
// in-place).
package stats

import "math"

// Result is the outcome of a two-arm significance test (delta method or
// Welch's t).
type Result struct {
	ZScore               float64
	PValue                float64
	Confidence            float64
	Significant           bool
	RelativeImprovement   float64
	AbsoluteImprovement   float64
	Winner                string // "control", "variant", or "" when not significant
}

// Gate reports whether an experiment has accumulated enough data to read
// results.
type Gate struct {
	MinimumNReached    bool
	MinimumDaysReached bool
	ReadyToRead        bool
}

// NewGate evaluates the sample-size and elapsed-time gating conditions.
func NewGate(controlSearches, variantSearches, requiredPerArm uint64, elapsedDays float64, minimumDays int) Gate {
	minN := controlSearches >= requiredPerArm && variantSearches >= requiredPerArm
	minDays := elapsedDays >= float64(minimumDays)
	return Gate{
		MinimumNReached:    minN,
		MinimumDaysReached: minDays,
		ReadyToRead:        minN && minDays,
	}
}

// SampleSizeEstimate is the result of a two-proportion power calculation.
type SampleSizeEstimate struct {
	PerArm        uint64
	Total         uint64
	EstimatedDays *float64
	MinimumDays   int
	EffectiveDays float64
}

// NormalSF computes P(Z > z) for the standard normal distribution using the
// Abramowitz & Stegun 26.2.17 rational approximation (Horner form). The
// caller must pass z >= 0.
func NormalSF(z float64) float64 {
	t := 1.0 / (1.0 + 0.2316419*z)
	d := 0.3989422804014327 // 1/sqrt(2*pi)
	p := d * math.Exp(-z*z/2.0)

	poly := t * (0.319381530 + t*(-0.356563782+t*(1.781477937+t*(-1.821255978+t*1.330274429))))

	return p * poly
}

func neutralResult() Result {
	return Result{PValue: 1.0}
}

func armRatioStats(data [][2]float64) (mean, variance float64, n int) {
	valid := make([]float64, 0, len(data))
	for _, cs := range data {
		clicks, searches := cs[0], cs[1]
		if searches > 0 {
			valid = append(valid, clicks/searches)
		}
	}
	n = len(valid)
	if n == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, v := range valid {
		sum += v
	}
	mean = sum / float64(n)
	if n > 1 {
		var ss float64
		for _, v := range valid {
			ss += (v - mean) * (v - mean)
		}
		variance = ss / float64(n-1)
	}
	return mean, variance, n
}

func armStats(data []float64) (mean, variance float64, n int) {
	n = len(data)
	if n == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	mean = sum / float64(n)
	if n > 1 {
		var ss float64
		for _, v := range data {
			ss += (v - mean) * (v - mean)
		}
		variance = ss / float64(n-1)
	}
	return mean, variance, n
}

func winnerOf(meanC, meanV float64, significant bool) string {
	if !significant {
		return ""
	}
	if meanV > meanC {
		return "variant"
	}
	return "control"
}

// DeltaMethodZTest compares per-user CTR (or any clicks/searches ratio)
// between arms using the delta method: each entry is (clicks, searches) for
// one user; users with zero searches are skipped.
func DeltaMethodZTest(control, variant [][2]float64) Result {
	meanC, varC, nC := armRatioStats(control)
	meanV, varV, nV := armRatioStats(variant)

	if nC == 0 || nV == 0 {
		return neutralResult()
	}

	se := math.Sqrt(varC/float64(nC) + varV/float64(nV))
	if se == 0 {
		return neutralResult()
	}

	z := (meanV - meanC) / se
	p := 2.0 * NormalSF(math.Abs(z))
	significant := p < 0.05

	absImprovement := meanV - meanC
	relImprovement := 0.0
	if meanC != 0 {
		relImprovement = absImprovement / meanC
	}

	return Result{
		ZScore:              z,
		PValue:              p,
		Confidence:          1.0 - p,
		Significant:         significant,
		RelativeImprovement: relImprovement,
		AbsoluteImprovement: absImprovement,
		Winner:              winnerOf(meanC, meanV, significant),
	}
}

// WelchTTest compares continuous metrics (e.g. revenue per search) between
// arms. Requires at least 2 observations per arm; falls back to the normal
// approximation when degrees of freedom exceed 50, else uses the Student's
// t two-tailed p-value via the regularized incomplete beta.
func WelchTTest(control, variant []float64) Result {
	meanC, varC, nC := armStats(control)
	meanV, varV, nV := armStats(variant)

	if nC < 2 || nV < 2 {
		return neutralResult()
	}

	se := math.Sqrt(varC/float64(nC) + varV/float64(nV))
	if se == 0 {
		return neutralResult()
	}

	t := (meanV - meanC) / se

	s1n := varC / float64(nC)
	s2n := varV / float64(nV)
	dfDenom := s1n*s1n/float64(nC-1) + s2n*s2n/float64(nV-1)
	if dfDenom <= 0 || math.IsInf(dfDenom, 0) || math.IsNaN(dfDenom) {
		return neutralResult()
	}
	df := (s1n + s2n) * (s1n + s2n) / dfDenom

	var p float64
	if df > 50.0 {
		p = 2.0 * NormalSF(math.Abs(t))
	} else {
		p = studentsTTwoTailedP(t, df)
	}
	p = clamp01(p)
	significant := p < 0.05

	absImprovement := meanV - meanC
	relImprovement := 0.0
	if meanC != 0 {
		relImprovement = absImprovement / meanC
	}

	return Result{
		ZScore:              t,
		PValue:              p,
		Confidence:          1.0 - p,
		Significant:         significant,
		RelativeImprovement: relImprovement,
		AbsoluteImprovement: absImprovement,
		Winner:              winnerOf(meanC, meanV, significant),
	}
}

// CheckSampleRatioMismatch reports whether the observed (control_n,
// variant_n) split deviates from expectedVariantFraction beyond a
// chi-squared threshold of 6.635 (p≈0.01).
func CheckSampleRatioMismatch(controlN, variantN uint64, expectedVariantFraction float64) bool {
	total := controlN + variantN
	if total == 0 {
		return false
	}
	expectedControl := float64(total) * (1.0 - expectedVariantFraction)
	expectedVariant := float64(total) * expectedVariantFraction
	if expectedControl == 0 || expectedVariant == 0 {
		return false
	}
	dc := float64(controlN) - expectedControl
	dv := float64(variantN) - expectedVariant
	chi2 := dc*dc/expectedControl + dv*dv/expectedVariant
	return chi2 > 6.635
}

// Winsorize caps every value above cap, in place.
func Winsorize(values []float64, cap float64) {
	for i, v := range values {
		if v > cap {
			values[i] = cap
		}
	}
}

// DetectOutlierUsers flags users whose log-transformed activity count is a
// z-score outlier (z > 7) and whose raw count exceeds 100, so that a small
// number of very active bot-like accounts don't distort arm statistics.
func DetectOutlierUsers(counts map[string]uint64) map[string]bool {
	out := make(map[string]bool)
	if len(counts) == 0 {
		return out
	}

	logValues := make([]float64, 0, len(counts))
	for _, v := range counts {
		if v > 0 {
			logValues = append(logValues, math.Log(float64(v)))
		}
	}
	if len(logValues) == 0 {
		return out
	}

	n := float64(len(logValues))
	var sum float64
	for _, v := range logValues {
		sum += v
	}
	mean := sum / n
	var ss float64
	for _, v := range logValues {
		ss += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(ss / n)
	if sd == 0 {
		return out
	}

	for user, count := range counts {
		if count <= 100 {
			continue
		}
		z := (math.Log(float64(count)) - mean) / sd
		if z > 7.0 {
			out[user] = true
		}
	}
	return out
}

// BetaBinomialProbBGreaterA computes P(B > A) under uniform Beta(1,1)
// priors using Evan Miller's closed-form sum, evaluated in log space for
// numerical stability. Returns 0.5 as a defensive fallback when clicks
// exceed searches for either arm.
func BetaBinomialProbBGreaterA(aClicks, aSearches, bClicks, bSearches uint64) float64 {
	if aClicks > aSearches || bClicks > bSearches {
		return 0.5
	}

	alphaA := float64(aClicks) + 1.0
	betaA := float64(aSearches-aClicks) + 1.0
	alphaB := float64(bClicks) + 1.0
	betaB := float64(bSearches-bClicks) + 1.0

	total := 0.0
	alphaBInt := uint64(alphaB)

	for i := uint64(0); i < alphaBInt; i++ {
		logNum := lnBeta(alphaA+float64(i), betaA+betaB)
		logDen := math.Log(betaB+float64(i)) + lnBeta(1.0+float64(i), betaB) + lnBeta(alphaA, betaA)
		total += math.Exp(logNum - logDen)
	}
	return total
}

func lnBeta(a, b float64) float64 {
	return lnGamma(a) + lnGamma(b) - lnGamma(a+b)
}

// lanczosCoefficients are the g=7 Lanczos approximation coefficients for
// ln(Gamma(x)).
var lanczosCoefficients = [9]float64{
	0.99999999999980993,
	676.5203681218851,
	-1259.1392167224028,
	771.32342877765313,
	-176.61502916214059,
	12.507343278686905,
	-0.13857109526572012,
	9.9843695780195716e-6,
	1.5056327351493116e-7,
}

func lnGamma(x float64) float64 {
	if x < 0.5 {
		return math.Log(math.Pi/math.Sin(math.Pi*x)) - lnGamma(1.0-x)
	}

	x -= 1.0
	acc := lanczosCoefficients[0]
	t := x + 7.5

	for i := 1; i < len(lanczosCoefficients); i++ {
		acc += lanczosCoefficients[i] / (x + float64(i))
	}

	return 0.5*math.Log(2.0*math.Pi) + (math.Log(t) * (x + 0.5)) - t + math.Log(acc)
}

// GuardRailAlert is emitted when a secondary metric regresses beyond the
// configured threshold.
type GuardRailAlert struct {
	MetricName    string
	ControlValue  float64
	VariantValue  float64
	DropPct       float64
}

// CheckGuardRail reports a regression when the variant metric has moved
// against the policy direction by more than threshold (default 0.20). For
// higher-is-better metrics, the variant must drop below
// control*(1-threshold); for lower-is-better metrics, it must rise above
// control*(1+threshold). A zero lower-is-better control baseline alerts on
// any positive variant value.
func CheckGuardRail(metricName string, controlMetric, variantMetric float64, lowerIsBetter bool, threshold float64) *GuardRailAlert {
	if controlMetric == 0 {
		if lowerIsBetter && variantMetric > 0 {
			return &GuardRailAlert{MetricName: metricName, ControlValue: controlMetric, VariantValue: variantMetric, DropPct: 100.0}
		}
		return nil
	}

	var triggered bool
	if lowerIsBetter {
		triggered = variantMetric > controlMetric*(1.0+threshold)
	} else {
		triggered = variantMetric < controlMetric*(1.0-threshold)
	}

	if !triggered {
		return nil
	}

	var dropPct float64
	if lowerIsBetter {
		dropPct = (variantMetric - controlMetric) / controlMetric * 100.0
	} else {
		dropPct = (controlMetric - variantMetric) / controlMetric * 100.0
	}
	return &GuardRailAlert{MetricName: metricName, ControlValue: controlMetric, VariantValue: variantMetric, DropPct: dropPct}
}

// RequiredSampleSize runs a two-proportion power analysis, returning the
// per-arm sample size needed to detect relativeMDE at the given
// alpha/power, adjusted for an unequal traffic split.
func RequiredSampleSize(baselineRate, relativeMDE, alpha, power, trafficSplit float64) SampleSizeEstimate {
	p1 := baselineRate
	p2 := baselineRate * (1.0 + relativeMDE)
	delta := math.Abs(p2 - p1)

	if delta == 0 {
		return SampleSizeEstimate{PerArm: math.MaxUint64, Total: math.MaxUint64, MinimumDays: 14, EffectiveDays: 14.0}
	}

	zAlpha := zFromP(1.0 - alpha/2.0)
	zPower := zFromP(power)

	pBar := (p1 + p2) / 2.0

	numerator := zAlpha*math.Sqrt(2.0*pBar*(1.0-pBar)) + zPower*math.Sqrt(p1*(1.0-p1)+p2*(1.0-p2))
	perArm := uint64(math.Ceil(numerator * numerator / (delta * delta)))

	splitFactor := 1.0 / (trafficSplit * (1.0 - trafficSplit) * 4.0)
	adjustedPerArm := uint64(math.Ceil(float64(perArm) * splitFactor))

	return SampleSizeEstimate{
		PerArm:        adjustedPerArm,
		Total:         adjustedPerArm * 2,
		MinimumDays:   14,
		EffectiveDays: 14.0,
	}
}

// zFromP approximates the inverse standard normal CDF with the Abramowitz &
// Stegun 26.2.23 rational formula (absolute error below 4.5e-4): returns z
// such that P(Z < z) ≈ p. It does not use the Beasley-Springer-Moro
// algorithm.
func zFromP(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	pAdj, sign := p, -1.0
	if p >= 0.5 {
		pAdj, sign = 1.0-p, 1.0
	}

	t := math.Sqrt(-2.0 * math.Log(pAdj))

	c0, c1, c2 := 2.515517, 0.802853, 0.010328
	d1, d2, d3 := 1.432788, 0.189269, 0.001308

	z := t - (c0+c1*t+c2*t*t)/(1.0+d1*t+d2*t*t+d3*t*t*t)
	return sign * z
}

func studentsTTwoTailedP(t, df float64) float64 {
	if math.IsInf(df, 0) || math.IsNaN(df) || df <= 0 {
		return 1.0
	}
	x := df / (df + t*t)
	return regularizedIncompleteBeta(df/2.0, 0.5, x)
}

func regularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	bt := math.Exp(lnGamma(a+b) - lnGamma(a) - lnGamma(b) + a*math.Log(x) + b*math.Log(1.0-x))

	if x < (a+1.0)/(a+b+2.0) {
		return clamp01(bt * betaContinuedFraction(a, b, x) / a)
	}
	return clamp01(1.0 - bt*betaContinuedFraction(b, a, 1.0-x)/b)
}

func betaContinuedFraction(a, b, x float64) float64 {
	const maxIters = 200
	const eps = 3.0e-7
	const fpmin = 1.0e-30

	qab := a + b
	qap := a + 1.0
	qam := a - 1.0

	c := 1.0
	d := 1.0 - qab*x/qap
	if math.Abs(d) < fpmin {
		d = fpmin
	}
	d = 1.0 / d
	h := d

	for m := 1; m <= maxIters; m++ {
		mf := float64(m)
		m2 := 2.0 * mf

		aa := mf * (b - mf) * x / ((qam + m2) * (a + m2))
		d = 1.0 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1.0 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1.0 / d
		h *= d * c

		aa = -(a + mf) * (qab + mf) * x / ((a + m2) * (qap + m2))
		d = 1.0 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1.0 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1.0 / d
		delta := d * c
		h *= delta

		if math.Abs(delta-1.0) < eps {
			break
		}
	}

	return h
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CUPEDMinMatchedUsers is the minimum number of users with a matching
// pre-experiment covariate before CUPED adjustment is applied; below this
// the input passes through unchanged.
const CUPEDMinMatchedUsers = 100

// CUPEDAdjust applies a CUPED (Controlled-experiment Using Pre-Existing
// Data) variance-reduction adjustment to per-user (clicks, searches)
// tuples, given each user's pre-experiment covariate value. Requires at
// least CUPEDMinMatchedUsers matched users and Var(X) > 1e-15; otherwise
// the input is returned unchanged.
func CUPEDAdjust(experimentValues [][2]float64, userIDs []string, covariates map[string]float64) [][2]float64 {
	if len(covariates) == 0 || len(experimentValues) != len(userIDs) {
		return experimentValues
	}

	type matchedRow struct {
		idx  int
		rate float64
		cov  float64
	}
	matched := make([]matchedRow, 0)
	for idx, uid := range userIDs {
		searches := experimentValues[idx][1]
		if searches <= 0 {
			continue
		}
		cov, ok := covariates[uid]
		if !ok {
			continue
		}
		rate := experimentValues[idx][0] / searches
		matched = append(matched, matchedRow{idx: idx, rate: rate, cov: cov})
	}

	if len(matched) < CUPEDMinMatchedUsers {
		return experimentValues
	}

	n := float64(len(matched))
	var sumX, sumY float64
	for _, m := range matched {
		sumX += m.cov
		sumY += m.rate
	}
	meanX := sumX / n
	meanY := sumY / n

	var ssX float64
	for _, m := range matched {
		ssX += (m.cov - meanX) * (m.cov - meanX)
	}
	varX := ssX / (n - 1.0)

	if varX < 1e-15 {
		return experimentValues
	}

	var covYX float64
	for _, m := range matched {
		covYX += (m.rate - meanY) * (m.cov - meanX)
	}
	covYX /= n - 1.0

	theta := covYX / varX

	result := make([][2]float64, len(experimentValues))
	copy(result, experimentValues)
	for _, m := range matched {
		clicks, searches := result[m.idx][0], result[m.idx][1]
		if searches <= 0 {
			continue
		}
		rate := clicks / searches
		adjustedRate := rate - theta*(m.cov-meanX)
		result[m.idx] = [2]float64{adjustedRate * searches, searches}
	}
	return result
}

// PreferenceResult is the outcome of team-draft interleaving preference
// scoring across queries.
type PreferenceResult struct {
	// DeltaAB = (winsA - winsB) / (winsA + winsB + ties). Positive means
	// control preferred; negative means variant preferred.
	DeltaAB float64
	WinsA   uint32
	WinsB   uint32
	Ties    uint32
	// PValue is the two-sided sign-test p-value (binomial at p=0.5, ties
	// excluded).
	PValue float64
}

// ComputePreferenceScore scores team-draft interleaving results: each entry
// is the (teamAClicks, teamBClicks) observed for one query; the team with
// more clicks wins that query, equal counts tie.
func ComputePreferenceScore(perQuery [][2]uint32) PreferenceResult {
	var winsA, winsB, ties uint32
	for _, q := range perQuery {
		a, b := q[0], q[1]
		switch {
		case a > b:
			winsA++
		case a < b:
			winsB++
		default:
			ties++
		}
	}

	total := winsA + winsB + ties
	deltaAB := 0.0
	if total > 0 {
		deltaAB = (float64(winsA) - float64(winsB)) / float64(total)
	}

	p := signTestPValue(winsA, winsB)

	return PreferenceResult{DeltaAB: deltaAB, WinsA: winsA, WinsB: winsB, Ties: ties, PValue: p}
}

// signTestPValue is the two-sided sign test p-value (binomial at p=0.5),
// n = winsA+winsB with ties excluded. Uses the normal approximation for
// n > 20, else an exact binomial CDF.
func signTestPValue(winsA, winsB uint32) float64 {
	n := winsA + winsB
	if n == 0 {
		return 1.0
	}
	nf := float64(n)
	k := float64(winsA)
	if winsB < winsA {
		k = float64(winsB)
	}

	if n > 20 {
		z := math.Abs(float64(winsA)-nf/2.0) / math.Sqrt(nf/4.0)
		return 2.0 * NormalSF(z)
	}

	cdf := 0.0
	binomCoeff := 1.0
	pN := math.Pow(0.5, float64(n))
	for i := uint32(0); i <= uint32(k); i++ {
		cdf += binomCoeff * pN
		if i < n {
			binomCoeff *= float64(n-i) / float64(i+1)
		}
	}
	return math.Min(2.0*cdf, 1.0)
}
