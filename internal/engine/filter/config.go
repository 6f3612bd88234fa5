package filter

// Config holds the thresholds of the entry filter chain.
type Config struct {
	ADXMin float64 `yaml:"adx_min" default:"25"`

	EMASlopePeriod   int     `yaml:"ema_slope_period" default:"50"`
	EMASlopeLookback int     `yaml:"ema_slope_lookback" default:"10"`
	EMASlopeMin      float64 `yaml:"ema_slope_min" default:"0.0005"`

	EMAAlignmentBuffer float64 `yaml:"ema_alignment_buffer" default:"0.007"`

	RSILongMin      float64 `yaml:"rsi_long_min" default:"50"`
	RSILongMax      float64 `yaml:"rsi_long_max" default:"70"`
	RSIShortMin     float64 `yaml:"rsi_short_min" default:"30"`
	RSIShortMax     float64 `yaml:"rsi_short_max" default:"50"`
	RSIVolThreshold float64 `yaml:"rsi_vol_threshold" default:"0.015"`
	RSIVolWiden     float64 `yaml:"rsi_vol_widen" default:"0"`

	MACDTolerance float64 `yaml:"macd_tolerance" default:"0.00001"`

	VolumeMinRatio float64 `yaml:"volume_min_ratio" default:"1.2"`
}

// FromConfig builds the standard chain. Order matters: cheap structural
// checks run before momentum and volume so most rejections stay cheap.
func FromConfig(cfg Config) []Filter {
	return []Filter{
		ADXStrength(cfg.ADXMin),
		EMASlope(cfg.EMASlopePeriod, cfg.EMASlopeLookback, cfg.EMASlopeMin),
		EMAAlignment(cfg.EMAAlignmentBuffer),
		RSIRange(RSIBand{
			LongMin: cfg.RSILongMin, LongMax: cfg.RSILongMax,
			ShortMin: cfg.RSIShortMin, ShortMax: cfg.RSIShortMax,
			VolThreshold: cfg.RSIVolThreshold, VolWiden: cfg.RSIVolWiden,
		}),
		MACDCross(cfg.MACDTolerance),
		VolumeSurge(cfg.VolumeMinRatio),
	}
}
