package mlvalidator

import (
	"context"
	"fmt"

	"TrendEngine/internal/domain/models"
	"TrendEngine/pkg/config"
	xhttp "TrendEngine/pkg/http"
	"TrendEngine/pkg/logger"
)

// Validator asks an external ML microservice whether a scored signal should
// trade. The service is advisory: when it is disabled, unreachable or slow,
// entries proceed, so a dead model process can never halt trading.
type Validator struct {
	enabled        bool
	url            string
	minProbability float64
	client         *xhttp.Client
	log            *logger.Logger
}

type predictRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	MACDSignal  float64 `json:"macd_signal"`
	ATRPercent  float64 `json:"atr_percent"`
	VolumeRatio float64 `json:"volume_ratio"`
	ADX         float64 `json:"adx"`
	Price       float64 `json:"price"`
	Score       float64 `json:"score"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
	Recommended bool    `json:"recommended"`
	Confidence  string  `json:"confidence"`
}

// New creates a validator from the application config.
func New(cfg *config.Config, log *logger.Logger) *Validator {
	v := &Validator{
		enabled:        cfg.Validator.Enabled,
		url:            cfg.Validator.URL,
		minProbability: cfg.Validator.MinProbability,
		log:            log,
	}
	if v.enabled {
		v.client = xhttp.NewClient(xhttp.WithTimeout(cfg.Validator.Timeout))
		log.Info("signal validator enabled",
			logger.String("url", v.url),
			logger.Float64("min_probability", v.minProbability))
	}
	return v
}

// Validate returns the model's verdict for the candidate. A transport or
// decode failure is returned as an error; callers treat errors as approval.
func (v *Validator) Validate(ctx context.Context, c *models.SignalCandidate, snap models.IndicatorSnapshot) (bool, error) {
	if !v.enabled {
		return true, nil
	}

	req := predictRequest{
		Symbol:      c.Symbol,
		Side:        string(c.Side),
		RSI:         snap.GetDefault(models.IndRSI, 50),
		MACD:        snap.GetDefault(models.IndMACD, 0),
		MACDSignal:  snap.GetDefault(models.IndMACDSignal, 0),
		ATRPercent:  snap.GetDefault(models.IndATRPercent, 0),
		VolumeRatio: snap.GetDefault(models.IndVolumeRatio, 1),
		ADX:         snap.GetDefault(models.IndADX, 0),
		Price:       c.Price,
		Score:       c.TotalScore,
	}

	var resp predictResponse
	err := v.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    v.url,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: req,
	}, &resp)
	if err != nil {
		return true, fmt.Errorf("predict %s: %w", c.Symbol, err)
	}

	if resp.Recommended && resp.Probability >= v.minProbability {
		v.log.Info("signal validated",
			logger.String("symbol", c.Symbol),
			logger.String("side", string(c.Side)),
			logger.Float64("probability", resp.Probability),
			logger.String("confidence", resp.Confidence))
		return true, nil
	}

	v.log.Warn("signal rejected by model",
		logger.String("symbol", c.Symbol),
		logger.String("side", string(c.Side)),
		logger.Float64("probability", resp.Probability),
		logger.String("confidence", resp.Confidence))
	return false, nil
}
