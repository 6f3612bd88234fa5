package indicator

import (
	"math"

	"TrendEngine/internal/domain/models"
)

// Periods used across the decision pipeline. They are fixed: every consumer
// of a snapshot assumes the same lookbacks.
const (
	RSIPeriod    = 14
	MACDFast     = 12
	MACDSlow     = 26
	MACDSignal   = 9
	ADXPeriod    = 14
	ATRPeriod    = 14
	VolumePeriod = 20
)

// Engine computes a full indicator snapshot from a bar series. It is
// stateless; every call recomputes from the series it is given.
type Engine struct{}

// New creates an indicator engine.
func New() *Engine { return &Engine{} }

// Compute returns the indicator snapshot for the latest bar of the series.
// Indicators whose lookback exceeds the series length are omitted from the
// snapshot, so consumers must handle missing keys.
func (e *Engine) Compute(series *models.Series) models.IndicatorSnapshot {
	snap := models.IndicatorSnapshot{}
	n := series.Len()
	if n == 0 {
		return snap
	}
	closes := series.Closes()

	if v, ok := RSI(closes, RSIPeriod); ok {
		snap[models.IndRSI] = v
	}
	if macd, sig, ok := MACD(closes, MACDFast, MACDSlow, MACDSignal); ok {
		snap[models.IndMACD] = macd
		snap[models.IndMACDSignal] = sig
	}
	if v, ok := lastEMA(closes, 9); ok {
		snap[models.IndEMA9] = v
	}
	if v, ok := lastEMA(closes, 21); ok {
		snap[models.IndEMA21] = v
	}
	if v, ok := lastEMA(closes, 50); ok {
		snap[models.IndEMA50] = v
	}

	bars := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = series.Bar(i)
	}
	if v, ok := ADX(bars, ADXPeriod); ok {
		snap[models.IndADX] = v
	}
	if v, ok := ATR(bars, ATRPeriod); ok {
		snap[models.IndATR] = v
		if last := closes[n-1]; last > 0 {
			snap[models.IndATRPercent] = v / last
		}
	}

	if avg, latest, ok := volumeStats(bars, VolumePeriod); ok {
		snap[models.IndVolumeAvg] = avg
		snap[models.IndVolumeLatest] = latest
		if avg > 0 {
			snap[models.IndVolumeRatio] = latest / avg
		}
	}
	return snap
}

// EMA computes the exponential moving average series over values. The first
// EMA value is seeded with the SMA of the first period values.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	out = append(out, ema)
	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = (v-ema)*k + ema
		out = append(out, ema)
	}
	return out
}

func lastEMA(values []float64, period int) (float64, bool) {
	s := EMA(values, period)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// EMASlope returns the relative change of the EMA over the lookback window:
// (ema[t] - ema[t-lookback]) / ema[t-lookback].
func EMASlope(closes []float64, period, lookback int) (float64, bool) {
	s := EMA(closes, period)
	if len(s) <= lookback {
		return 0, false
	}
	prev := s[len(s)-1-lookback]
	if prev == 0 {
		return 0, false
	}
	return (s[len(s)-1] - prev) / prev, true
}

// RSI computes Wilder's relative strength index for the last close.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss += -d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD computes the MACD line and its signal line for the last close.
func MACD(closes []float64, fast, slow, signal int) (macd, sig float64, ok bool) {
	if len(closes) < slow+signal {
		return 0, 0, false
	}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	// Align: slowEMA starts (slow-fast) entries later than fastEMA.
	offset := slow - fast
	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+offset] - slowEMA[i]
	}
	sigLine := EMA(macdLine, signal)
	if len(sigLine) == 0 {
		return 0, 0, false
	}
	return macdLine[len(macdLine)-1], sigLine[len(sigLine)-1], true
}

// ATR computes Wilder's average true range for the last bar.
func ATR(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	trs := trueRanges(bars)
	var atr float64
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, true
}

func trueRanges(bars []models.Bar) []float64 {
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		h, l, pc := bars[i].High, bars[i].Low, bars[i-1].Close
		tr := math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
		out = append(out, tr)
	}
	return out
}

// ADX computes Wilder's average directional index for the last bar.
func ADX(bars []models.Bar, period int) (float64, bool) {
	// Need 2*period bars of DX to smooth into a first ADX value.
	if period <= 0 || len(bars) < 2*period+1 {
		return 0, false
	}
	trs := trueRanges(bars)
	plusDM := make([]float64, len(trs))
	minusDM := make([]float64, len(trs))
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
	}

	smooth := func(vals []float64) []float64 {
		out := make([]float64, 0, len(vals)-period+1)
		var sum float64
		for _, v := range vals[:period] {
			sum += v
		}
		out = append(out, sum)
		for _, v := range vals[period:] {
			sum = sum - sum/float64(period) + v
			out = append(out, sum)
		}
		return out
	}

	trS := smooth(trs)
	pdmS := smooth(plusDM)
	mdmS := smooth(minusDM)

	dx := make([]float64, len(trS))
	for i := range trS {
		if trS[i] == 0 {
			continue
		}
		pdi := 100 * pdmS[i] / trS[i]
		mdi := 100 * mdmS[i] / trS[i]
		if sum := pdi + mdi; sum > 0 {
			dx[i] = 100 * math.Abs(pdi-mdi) / sum
		}
	}
	if len(dx) < period {
		return 0, false
	}
	var adx float64
	for _, v := range dx[:period] {
		adx += v
	}
	adx /= float64(period)
	for _, v := range dx[period:] {
		adx = (adx*float64(period-1) + v) / float64(period)
	}
	return adx, true
}

func volumeStats(bars []models.Bar, period int) (avg, latest float64, ok bool) {
	if len(bars) < period+1 {
		return 0, 0, false
	}
	// Average excludes the latest bar so the ratio compares it to history.
	window := bars[len(bars)-1-period : len(bars)-1]
	var sum float64
	for _, b := range window {
		sum += b.Volume
	}
	return sum / float64(period), bars[len(bars)-1].Volume, true
}
