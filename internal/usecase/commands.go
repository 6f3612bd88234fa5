package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	drepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/strategy"
	pkgkafka "TrendEngine/pkg/kafka"
	"TrendEngine/pkg/logger"
)

// Command actions accepted on the command topic.
const (
	CmdClose         = "close"
	CmdHalt          = "halt"
	CmdResume        = "resume"
	CmdEmergencyExit = "emergency_exit"
	CmdResetDaily    = "reset_daily"
)

// CommandHandler consumes manual trading commands from Kafka: close a
// position, halt or resume entries, or flatten everything.
type CommandHandler struct {
	topic   string
	riskMgr *risk.Manager
	engine  *strategy.Engine
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewCommandHandler creates the command consumer handler.
func NewCommandHandler(topic string, riskMgr *risk.Manager, engine *strategy.Engine,
	metrics drepo.Metrics, log *logger.Logger) *CommandHandler {
	return &CommandHandler{topic: topic, riskMgr: riskMgr, engine: engine, metrics: metrics, log: log}
}

// Topic implements pkgkafka.MessageHandler.
func (h *CommandHandler) Topic() string { return h.topic }

type command struct {
	Action string `json:"action"`
	Symbol string `json:"symbol,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Handle executes one command message.
func (h *CommandHandler) Handle(ctx context.Context, b []byte) error {
	var cmd command
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return err
	}

	h.log.Info("manual command received",
		logger.String("action", cmd.Action),
		logger.String("symbol", cmd.Symbol))

	switch cmd.Action {
	case CmdClose:
		if cmd.Symbol == "" {
			return fmt.Errorf("close command requires symbol")
		}
		reason := cmd.Reason
		if reason == "" {
			reason = "MANUAL_CLOSE"
		}
		h.riskMgr.ClosePosition(ctx, cmd.Symbol, reason, h.engine.LastPrice(cmd.Symbol))
	case CmdHalt:
		h.riskMgr.Halt(cmd.Reason)
	case CmdResume:
		h.riskMgr.Resume()
	case CmdEmergencyExit:
		h.riskMgr.EmergencyExit(ctx)
	case CmdResetDaily:
		h.riskMgr.ResetDaily()
	default:
		h.metrics.RecordError("command_unknown")
		return fmt.Errorf("unknown command action: %s", cmd.Action)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*CommandHandler)(nil)
