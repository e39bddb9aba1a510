package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/tensor"
	"github.com/samcharles93/tessera/internal/version"
)

type Config struct {
	Launcher *grid.Launcher
	// RateLimit is the sustained number of kernel launches per second.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
	StoreSize int
	Logger    logger.Logger
}

type Server struct {
	launcher *grid.Launcher
	service  *KernelService
	store    *RunStore
	limiter  *rate.Limiter
	clock    func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Launcher == nil {
		cfg.Launcher = grid.MustNew(grid.Config{Order: grid.OrderParallel, Logger: cfg.Logger})
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	return &Server{
		launcher: cfg.Launcher,
		service:  NewKernelService(cfg.Launcher, cfg.Logger),
		store:    NewRunStore(cfg.StoreSize),
		limiter:  limiter,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/kernels", s.handleListKernels)
	e.POST("/v1/layernorm", s.handleLayerNorm)
	e.POST("/v1/matmul", s.handleMatMul)
	e.GET("/v1/runs/:id", s.handleGetRun)
	e.DELETE("/v1/runs/:id", s.handleDeleteRun)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleListKernels(c *echo.Context) error {
	cfg := s.launcher.Config()
	return c.JSON(http.StatusOK, KernelList{
		Object:    "list",
		Data:      kernels.List(),
		BlockSize: cfg.BlockSize,
		Lanes:     cfg.Lanes.String(),
		Order:     cfg.Order.String(),
		Workers:   cfg.Workers,
	})
}

func (s *Server) handleLayerNorm(c *echo.Context) error {
	if !s.limiter.Allow() {
		return writeRateLimited(c)
	}
	req, err := decodeJSON[LayerNormRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	res, err := s.service.LayerNorm(c.Request().Context(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, s.record(res))
}

func (s *Server) handleMatMul(c *echo.Context) error {
	if !s.limiter.Allow() {
		return writeRateLimited(c)
	}
	req, err := decodeJSON[MatMulRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	res, err := s.service.MatMul(c.Request().Context(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, s.record(res))
}

func (s *Server) handleGetRun(c *echo.Context) error {
	id := c.Param("id")
	run, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleDeleteRun(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "run not found")
	}
	return c.JSON(http.StatusOK, DeleteRunResp{
		ID:      id,
		Object:  "kernel.run",
		Deleted: true,
	})
}

// record assigns an id to a result and keeps it for later retrieval.
func (s *Server) record(res *Result) RunResponse {
	run := RunResponse{
		ID:         newRunID(),
		Object:     "kernel.run",
		Kernel:     res.Kernel,
		CreatedAt:  s.clock().Unix(),
		Shape:      [4]int(res.Shape),
		Output:     res.Output,
		Cursors:    cursorDTOs(res.Cursors),
		DurationUS: res.Elapsed.Microseconds(),
	}
	s.store.Put(run)
	return run
}

func cursorDTOs(cs []tensor.Cursor) []Cursor {
	if len(cs) == 0 {
		return nil
	}
	out := make([]Cursor, len(cs))
	for i, c := range cs {
		out[i] = Cursor{Batch: c.Batch, Token: c.Token, Len: c.Len, Packed: c.Pack()}
	}
	return out
}
