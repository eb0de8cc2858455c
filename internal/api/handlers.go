package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/marketdata"
)

// ==================== SIGNAL GENERATION ====================

type generateRequest struct {
	Symbol        string   `json:"symbol" binding:"required"`
	Timeframe     string   `json:"timeframe"`
	OrderType     string   `json:"order_type"`
	Methods       []string `json:"methods"`
	MinConfidence *int     `json:"min_confidence" binding:"omitempty,min=0,max=100"`
}

// handleGenerateSignal runs the pipeline for one symbol and timeframe
func (s *Server) handleGenerateSignal(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	engReq := engine.Request{
		Symbol:        req.Symbol,
		Timeframe:     analysis.Timeframe(req.Timeframe),
		OrderType:     engine.OrderType(strings.ToLower(req.OrderType)),
		Methods:       req.Methods,
		MinConfidence: req.MinConfidence,
	}

	sig, err := s.deps.Generator.Generate(c.Request.Context(), engReq)
	if err != nil {
		if rej, ok := engine.AsRejection(err); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":       true,
				"message":     rej.Error(),
				"reason":      rej.Reason,
				"achieved":    rej.Achieved,
				"threshold":   rej.Threshold,
				"risk_reward": rej.RiskReward,
				"trace":       rej.Trace,
			})
			return
		}
		if errors.Is(err, engine.ErrInvalidRequest) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("signal generation failed", "symbol", req.Symbol, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Signal generation failed")
		return
	}

	successResponse(c, sig)
}

// ==================== SIGNAL HISTORY ====================

// handleListSignals returns persisted signals filtered by query parameters
func (s *Server) handleListSignals(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	filter := database.SignalFilter{
		Symbol:    c.Query("symbol"),
		Timeframe: c.Query("timeframe"),
		Status:    c.Query("status"),
		Direction: c.Query("direction"),
	}
	var err error
	if filter.MinConfidence, err = queryInt(c, "min_confidence", 0); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = queryInt(c, "limit", database.DefaultListLimit); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	signals, err := s.deps.Store.ListSignals(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list signals", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list signals")
		return
	}

	successResponse(c, gin.H{
		"signals": signals,
		"count":   len(signals),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// handleGetSignal returns one signal with its lifecycle state
func (s *Server) handleGetSignal(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	rec, err := s.deps.Store.GetSignal(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrSignalNotFound) {
		errorResponse(c, http.StatusNotFound, "Signal not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load signal", "id", c.Param("id"), "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to load signal")
		return
	}

	successResponse(c, rec)
}

// handleGetSignalUpdates returns the lifecycle history of one signal
func (s *Server) handleGetSignalUpdates(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.deps.Store.GetSignal(ctx, id); err != nil {
		if errors.Is(err, database.ErrSignalNotFound) {
			errorResponse(c, http.StatusNotFound, "Signal not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to load signal")
		return
	}

	updates, err := s.deps.Store.ListSignalUpdates(ctx, id)
	if err != nil {
		s.logger.Error("failed to list signal updates", "id", id, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list signal updates")
		return
	}

	successResponse(c, gin.H{"signal_id": id, "updates": updates})
}

// ==================== MARKET DATA ====================

// handleGetPrice resolves the current price through the cache chain
func (s *Server) handleGetPrice(c *gin.Context) {
	if s.deps.Prices == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Price service not available")
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	price, source, err := s.deps.Prices.CurrentPrice(ctx, symbol, 0)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoPrice) {
			errorResponse(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to resolve price")
		return
	}

	successResponse(c, gin.H{
		"symbol": symbol,
		"price":  price,
		"source": source,
	})
}

// handleHigherTimeframe reports the structural timeframe paired with a working timeframe
func (s *Server) handleHigherTimeframe(c *gin.Context) {
	tf := analysis.Timeframe(c.Param("tf"))
	successResponse(c, gin.H{
		"timeframe": tf,
		"higher":    analysis.HigherTimeframe(tf),
		"known":     tf.Known(),
	})
}

// ==================== SCANNER & ANALYSIS ====================

func (s *Server) handleLastScan(c *gin.Context) {
	if s.deps.Scanner == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Scanner not available")
		return
	}
	res := s.deps.Scanner.GetLastResult()
	if res == nil {
		errorResponse(c, http.StatusNotFound, "No scan has completed yet")
		return
	}
	successResponse(c, res)
}

// handleConfidenceOutcomes groups closed signals by confidence bucket
func (s *Server) handleConfidenceOutcomes(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	bucket, err := queryInt(c, "bucket", 10)
	if err != nil || bucket <= 0 || bucket > 100 {
		errorResponse(c, http.StatusBadRequest, "bucket must be between 1 and 100")
		return
	}

	buckets, err := s.deps.Store.ConfidenceOutcomes(c.Request.Context(), bucket)
	if err != nil {
		s.logger.Error("failed to compute confidence outcomes", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to compute outcomes")
		return
	}

	successResponse(c, gin.H{"bucket_size": bucket, "buckets": buckets})
}

// ==================== HELPERS ====================

func (s *Server) requireStore(c *gin.Context) bool {
	if s.deps.Store == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Signal storage not configured")
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}
