package models

// IndicatorSnapshot is a read-only named mapping of indicator values computed
// for the latest bar of a series. Filters consume it, never mutate it.
type IndicatorSnapshot map[string]float64

// Well-known snapshot keys.
const (
	IndRSI          = "RSI"
	IndMACD         = "MACD"
	IndMACDSignal   = "MACD_SIGNAL"
	IndADX          = "ADX"
	IndEMA9         = "EMA_9"
	IndEMA21        = "EMA_21"
	IndEMA50        = "EMA_50"
	IndATR          = "ATR"
	IndATRPercent   = "ATR_PERCENT"
	IndVolumeRatio  = "VOLUME_RATIO"
	IndVolumeAvg    = "VOLUME_AVG"
	IndVolumeLatest = "VOLUME_CURRENT"
)

// Get returns the value for key; ok is false when the indicator is missing.
func (s IndicatorSnapshot) Get(key string) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

// GetDefault returns the value for key or def when missing.
func (s IndicatorSnapshot) GetDefault(key string, def float64) float64 {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}
