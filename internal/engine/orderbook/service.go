package orderbook

import (
	"sync"

	"TrendEngine/pkg/logger"
)

// Config tunes depth-based entry confirmation.
type Config struct {
	Enabled           bool    `yaml:"enabled" default:"true"`
	DepthLevels       int     `yaml:"depth_levels" default:"20"`
	MinImbalance      float64 `yaml:"min_imbalance" default:"0.2"`
	MaxSpreadPercent  float64 `yaml:"max_spread_percent" default:"0.001"`
	WallStdDevMult    float64 `yaml:"wall_stddev_multiplier" default:"2.0"`
	WallProximity     float64 `yaml:"wall_proximity" default:"0.002"`
	WallFilterEnabled bool    `yaml:"wall_filter_enabled" default:"true"`
	MaxSlippage       float64 `yaml:"max_slippage_percent" default:"0.005"`
}

// Service tracks live depth per symbol and answers entry-confirmation and
// slippage questions. When disabled, every check passes: depth data must
// never be a hard dependency of the decision path.
type Service struct {
	cfg   Config
	log   *logger.Logger
	mu    sync.RWMutex
	books map[string]*Book
}

// NewService creates the depth service.
func NewService(cfg Config, log *logger.Logger) *Service {
	return &Service{cfg: cfg, log: log, books: make(map[string]*Book)}
}

// Enabled reports whether depth checks are active.
func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Book returns the book for symbol, creating it on first use.
func (s *Service) Book(symbol string) *Book {
	s.mu.RLock()
	b := s.books[symbol]
	s.mu.RUnlock()
	if b != nil {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b = s.books[symbol]; b == nil {
		b = NewBook(symbol)
		s.books[symbol] = b
	}
	return b
}

// ApplySnapshot replaces a symbol's book with a full depth snapshot.
func (s *Service) ApplySnapshot(symbol string, bids, asks []Level, updateID int64) {
	if !s.cfg.Enabled {
		return
	}
	s.Book(symbol).Replace(bids, asks, updateID)
}

// ApplyUpdate merges an incremental depth update.
func (s *Service) ApplyUpdate(symbol string, bids, asks []Level, updateID int64) {
	if !s.cfg.Enabled {
		return
	}
	b := s.Book(symbol)
	for _, l := range bids {
		b.UpdateBid(l.Price, l.Quantity)
	}
	for _, l := range asks {
		b.UpdateAsk(l.Price, l.Quantity)
	}
	if updateID > 0 {
		b.SetLastUpdateID(updateID)
	}
}

// ConfirmBuy checks depth conditions for a long entry: bid-side imbalance at
// least MinImbalance, spread within bounds, and price not pressed against a
// sell wall. A buy wall below price short-circuits to approve.
func (s *Service) ConfirmBuy(symbol string, price float64) bool {
	if !s.cfg.Enabled {
		return true
	}
	b := s.Book(symbol)

	imb := b.Imbalance(s.cfg.DepthLevels)
	if imb < s.cfg.MinImbalance {
		s.log.Debug("depth rejects buy: imbalance too low",
			logger.String("symbol", symbol), logger.Float64("imbalance", imb))
		return false
	}
	if sp := b.SpreadPercent(); sp > s.cfg.MaxSpreadPercent {
		s.log.Debug("depth rejects buy: spread too wide",
			logger.String("symbol", symbol), logger.Float64("spread", sp))
		return false
	}
	if s.cfg.WallFilterEnabled {
		if wall, ok := b.BuyWall(s.cfg.WallStdDevMult); ok && price > wall {
			return true
		}
		if wall, ok := b.SellWall(s.cfg.WallStdDevMult); ok && price > 0 {
			dist := (wall - price) / price
			if dist > 0 && dist < s.cfg.WallProximity {
				s.log.Debug("depth rejects buy: sell wall ahead",
					logger.String("symbol", symbol), logger.Float64("wall", wall))
				return false
			}
		}
	}
	return true
}

// ConfirmSell mirrors ConfirmBuy for short entries.
func (s *Service) ConfirmSell(symbol string, price float64) bool {
	if !s.cfg.Enabled {
		return true
	}
	b := s.Book(symbol)

	imb := b.Imbalance(s.cfg.DepthLevels)
	if imb > -s.cfg.MinImbalance {
		s.log.Debug("depth rejects sell: imbalance not bearish",
			logger.String("symbol", symbol), logger.Float64("imbalance", imb))
		return false
	}
	if sp := b.SpreadPercent(); sp > s.cfg.MaxSpreadPercent {
		s.log.Debug("depth rejects sell: spread too wide",
			logger.String("symbol", symbol), logger.Float64("spread", sp))
		return false
	}
	if s.cfg.WallFilterEnabled {
		if wall, ok := b.SellWall(s.cfg.WallStdDevMult); ok && price < wall {
			return true
		}
		if wall, ok := b.BuyWall(s.cfg.WallStdDevMult); ok && price > 0 {
			dist := (price - wall) / price
			if dist > 0 && dist < s.cfg.WallProximity {
				s.log.Debug("depth rejects sell: buy wall below",
					logger.String("symbol", symbol), logger.Float64("wall", wall))
				return false
			}
		}
	}
	return true
}

// EstimateSlippage returns the expected relative price impact of a market
// order of the given notional.
func (s *Service) EstimateSlippage(symbol string, isBuy bool, notional, price float64) float64 {
	if !s.cfg.Enabled {
		return 0
	}
	return s.Book(symbol).EstimateSlippage(isBuy, notional, price)
}

// BuyWall reports an abnormally large bid level for the symbol, if any.
func (s *Service) BuyWall(symbol string) (float64, bool) {
	if !s.cfg.Enabled {
		return 0, false
	}
	return s.Book(symbol).BuyWall(s.cfg.WallStdDevMult)
}

// SellWall reports an abnormally large ask level for the symbol, if any.
func (s *Service) SellWall(symbol string) (float64, bool) {
	if !s.cfg.Enabled {
		return 0, false
	}
	return s.Book(symbol).SellWall(s.cfg.WallStdDevMult)
}

// SlippageAcceptable estimates market-order slippage for the notional and
// rejects when it exceeds the configured maximum.
func (s *Service) SlippageAcceptable(symbol string, isBuy bool, notional, price float64) bool {
	if !s.cfg.Enabled {
		return true
	}
	slip := s.Book(symbol).EstimateSlippage(isBuy, notional, price)
	if slip > s.cfg.MaxSlippage {
		s.log.Warn("slippage too high, blocking order",
			logger.String("symbol", symbol),
			logger.Float64("slippage", slip),
			logger.Float64("max", s.cfg.MaxSlippage))
		return false
	}
	return true
}
