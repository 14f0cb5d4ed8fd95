package api

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/basalt/internal/logger"
	"github.com/samcharles93/basalt/internal/qop"
	"github.com/samcharles93/basalt/pkg/quant"
)

// Server exposes a single packed operator over HTTP.
//
// Packed operators cache requantization state keyed on the input scale, so
// runs are serialized behind a mutex.
type Server struct {
	op  qop.Operator
	log logger.Logger

	mu    sync.Mutex
	clock func() time.Time
}

func NewServer(op qop.Operator, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		op:    op,
		log:   log,
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/healthz", s.handleHealthz)
	e.GET("/v1/operator", s.handleOperator)
	e.POST("/v1/run", s.handleRun)
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOperator(c *echo.Context) error {
	info := s.op.Info()
	return c.JSON(http.StatusOK, OperatorResponse{
		Name:            info.Name,
		Kind:            info.Kind,
		Scheme:          info.Scheme,
		InputChannels:   info.InputChannels,
		OutputChannels:  info.OutputChannels,
		Kernel:          info.Kernel,
		Stride:          info.Stride,
		Padding:         info.Padding,
		OutputScale:     info.OutputScale,
		OutputZeroPoint: info.OutputZeroPoint,
		Activation:      info.Activation,
	})
}

func (s *Server) handleRun(c *echo.Context) error {
	req, err := decodeJSON[RunRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Input) == 0 {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "input must not be empty", "input")
	}
	if !(req.InputScale > 0) || math.IsInf(float64(req.InputScale), 0) {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "input_scale must be positive and finite", "input_scale")
	}
	for _, v := range req.Input {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return writeError(c, http.StatusBadRequest, "invalid_request_error", "input values must be finite", "input")
		}
	}

	codes := make([]uint8, len(req.Input))
	for i, v := range req.Input {
		codes[i] = quant.QuantizeUint8(req.InputScale, req.InputZeroPoint, v)
	}

	start := s.clock()
	s.mu.Lock()
	out, shape, err := s.op.Apply(codes, req.Shape, qop.InputParams{
		Scale:     req.InputScale,
		ZeroPoint: req.InputZeroPoint,
	})
	s.mu.Unlock()
	elapsed := s.clock().Sub(start)

	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	info := s.op.Info()
	output := make([]float32, len(out))
	for i, code := range out {
		output[i] = quant.DequantizeUint8(info.OutputScale, info.OutputZeroPoint, code)
	}

	id := "run_" + uuid.NewString()
	s.log.Debug("run complete", "id", id, "operator", info.Name, "elapsed", elapsed)
	return c.JSON(http.StatusOK, RunResponse{
		ID:        id,
		Operator:  info.Name,
		Shape:     shape,
		Codes:     out,
		Output:    output,
		ElapsedMS: float64(elapsed.Microseconds()) / 1000.0,
	})
}
