package filter

import (
	"fmt"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/service/indicator"
)

// Filter names, also used as metric labels.
const (
	NameADX          = "adx_strength"
	NameEMASlope     = "ema_slope"
	NameEMAAlignment = "ema_alignment"
	NameRSIRange     = "rsi_range"
	NameMACDCross    = "macd_cross"
	NameVolume       = "volume_surge"
)

// ADXStrength rejects entries when the trend strength is below min. A missing
// ADX value (series too short) blocks.
func ADXStrength(min float64) Filter {
	return Filter{
		Name: NameADX,
		Check: func(in Input) (bool, string) {
			adx, ok := in.Snapshot.Get(models.IndADX)
			if !ok {
				return false, "ADX unavailable"
			}
			if adx < min {
				return false, fmt.Sprintf("ADX %.1f below %.1f", adx, min)
			}
			return true, ""
		},
	}
}

// EMASlope requires the long EMA to slope in the trade direction by at least
// minSlope over the lookback window.
func EMASlope(period, lookback int, minSlope float64) Filter {
	return Filter{
		Name: NameEMASlope,
		Check: func(in Input) (bool, string) {
			slope, ok := indicator.EMASlope(in.Series.Closes(), period, lookback)
			if !ok {
				return false, "not enough bars for slope"
			}
			if in.Side.IsLong() {
				if slope < minSlope {
					return false, fmt.Sprintf("slope %.5f below %.5f", slope, minSlope)
				}
				return true, ""
			}
			if slope > -minSlope {
				return false, fmt.Sprintf("slope %.5f above %.5f", slope, -minSlope)
			}
			return true, ""
		},
	}
}

// EMAAlignment requires price and the mid/slow EMAs to stack in the trade
// direction: long needs price > EMA21 > EMA50, short the mirror. The buffer
// demands clearance past each level so a close hovering right at the average
// does not flap in and out.
func EMAAlignment(buffer float64) Filter {
	return Filter{
		Name: NameEMAAlignment,
		Check: func(in Input) (bool, string) {
			mid, ok1 := in.Snapshot.Get(models.IndEMA21)
			slow, ok2 := in.Snapshot.Get(models.IndEMA50)
			if !ok1 || !ok2 {
				return false, "EMA values unavailable"
			}
			if in.Side.IsLong() {
				if in.Price > mid*(1+buffer) && mid > slow*(1+buffer) {
					return true, ""
				}
				return false, fmt.Sprintf("bullish alignment broken: price %.4f, EMA21 %.4f, EMA50 %.4f",
					in.Price, mid, slow)
			}
			if in.Price < mid*(1-buffer) && mid < slow*(1-buffer) {
				return true, ""
			}
			return false, fmt.Sprintf("bearish alignment broken: price %.4f, EMA21 %.4f, EMA50 %.4f",
				in.Price, mid, slow)
		},
	}
}

// RSIBand holds the direction-specific momentum bands and the optional
// volatility widening: when ATR%% exceeds VolThreshold, each band edge moves
// out by VolWiden points. VolWiden 0 disables the regime adjustment.
type RSIBand struct {
	LongMin, LongMax   float64
	ShortMin, ShortMax float64
	VolThreshold       float64
	VolWiden           float64
}

// RSIRange keeps longs and shorts inside their bands, rejecting
// overbought/oversold entries. Volatile regimes widen the band so choppy
// markets do not reject every marginal reading.
func RSIRange(band RSIBand) Filter {
	return Filter{
		Name: NameRSIRange,
		Check: func(in Input) (bool, string) {
			rsi, ok := in.Snapshot.Get(models.IndRSI)
			if !ok {
				return false, "RSI unavailable"
			}
			lo, hi := band.ShortMin, band.ShortMax
			if in.Side.IsLong() {
				lo, hi = band.LongMin, band.LongMax
			}
			if band.VolWiden > 0 {
				if atrPct, ok := in.Snapshot.Get(models.IndATRPercent); ok && atrPct > band.VolThreshold {
					lo -= band.VolWiden
					hi += band.VolWiden
				}
			}
			if rsi < lo || rsi > hi {
				return false, fmt.Sprintf("RSI %.1f outside [%.0f, %.0f]", rsi, lo, hi)
			}
			return true, ""
		},
	}
}

// MACDCross requires the MACD line on the trade side of its signal line.
// The tolerance absorbs float noise right at the crossover.
func MACDCross(tolerance float64) Filter {
	return Filter{
		Name: NameMACDCross,
		Check: func(in Input) (bool, string) {
			macd, ok1 := in.Snapshot.Get(models.IndMACD)
			sig, ok2 := in.Snapshot.Get(models.IndMACDSignal)
			if !ok1 || !ok2 {
				return false, "MACD unavailable"
			}
			if in.Side.IsLong() {
				if macd >= sig-tolerance {
					return true, ""
				}
				return false, fmt.Sprintf("MACD %.6f below signal %.6f", macd, sig)
			}
			if macd <= sig+tolerance {
				return true, ""
			}
			return false, fmt.Sprintf("MACD %.6f above signal %.6f", macd, sig)
		},
	}
}

// VolumeSurge requires the latest bar's volume to exceed minRatio times the
// trailing average.
func VolumeSurge(minRatio float64) Filter {
	return Filter{
		Name: NameVolume,
		Check: func(in Input) (bool, string) {
			ratio, ok := in.Snapshot.Get(models.IndVolumeRatio)
			if !ok {
				return false, "volume history unavailable"
			}
			if ratio < minRatio {
				return false, fmt.Sprintf("volume ratio %.2f below %.2f", ratio, minRatio)
			}
			return true, ""
		},
	}
}
