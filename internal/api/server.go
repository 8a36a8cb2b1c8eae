package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/version"
	"github.com/samcharles93/quill/internal/webui"
)

// Service is what the HTTP layer needs from a loaded model.
// *inference.Generator implements it.
type Service interface {
	Encode(text string, specials bool) ([]int, error)
	Decode(ids []int) (string, error)
	Generate(ctx context.Context, req inference.Request, stream inference.StreamFunc) (*inference.Result, error)
	Hyperparameters() model.Hyperparameters
}

var _ Service = (*inference.Generator)(nil)

type Config struct {
	// ModelID is reported in /v1/model and on every generation.
	ModelID string
	// Defaults seed every generate request before the body is applied.
	Defaults inference.RequestOptions
	// GenerateRPS limits /v1/generate; zero disables the limit.
	GenerateRPS   float64
	GenerateBurst int
	// Timeout bounds a single generation; zero means none.
	Timeout time.Duration
	// UI serves the browser playground at /.
	UI bool
}

type Server struct {
	service Service
	store   *GenerationStore
	log     logger.Logger
	cfg     Config
	limiter *rate.Limiter
	clock   func() time.Time
}

func NewServer(service Service, store *GenerationStore, log logger.Logger, cfg Config) *Server {
	if store == nil {
		store = NewGenerationStore(0)
	}
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		service: service,
		store:   store,
		log:     log,
		cfg:     cfg,
		clock:   time.Now,
	}
	if cfg.GenerateRPS > 0 {
		burst := max(cfg.GenerateBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.GenerateRPS), burst)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/model", s.handleModel)
	e.POST("/v1/encode", s.handleEncode)
	e.POST("/v1/decode", s.handleDecode)
	e.POST("/v1/generate", s.handleGenerate, s.rateLimit)
	e.GET("/v1/generations/:id", s.handleGetGeneration)
	e.DELETE("/v1/generations/:id", s.handleDeleteGeneration)
	if s.cfg.UI {
		e.GET("/", s.handleUI)
	}
}

func (s *Server) handleUI(c *echo.Context) error {
	return c.Blob(http.StatusOK, "text/html; charset=utf-8", webui.Index())
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many generate requests", "", "rate_limited")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleModel(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "model not loaded", "", "")
	}
	return c.JSON(http.StatusOK, ModelResponse{
		Object:          "model",
		ID:              s.cfg.ModelID,
		Hyperparameters: s.service.Hyperparameters(),
		Version:         version.Resolve(),
	})
}

func (s *Server) handleEncode(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "model not loaded", "", "")
	}
	req, err := decodeJSON[EncodeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ids, err := s.service.Encode(req.Text, req.Specials)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, EncodeResponse{Object: "tokens", Tokens: ids, Count: len(ids)})
}

func (s *Server) handleDecode(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "model not loaded", "", "")
	}
	req, err := decodeJSON[DecodeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	text, err := s.service.Decode(req.Tokens)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, DecodeResponse{Object: "text", Text: text})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "model not loaded", "", "")
	}
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	req := s.resolve(body)
	if err := req.Validate(); err != nil {
		return writeServiceError(c, err)
	}

	ctx := c.Request().Context()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	id := "gen_" + uuid.NewString()
	created := s.clock()
	if !body.Stream {
		res, err := s.service.Generate(ctx, req, nil)
		if err != nil {
			s.log.Warn("generate failed", "id", id, "error", err)
			return writeServiceError(c, err)
		}
		g := s.generation(id, created, res)
		s.save(body, g)
		return c.JSON(http.StatusOK, g)
	}

	writer, err := NewSSEStreamWriter(c, id)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := writer.Begin(Generation{ID: id, Object: "generation", CreatedAt: created.Unix(), Model: s.cfg.ModelID}); err != nil {
		return nil
	}
	res, err := s.service.Generate(ctx, req, writer.Delta)
	if err != nil {
		s.log.Warn("generate failed", "id", id, "error", err)
		_ = writer.Fail(err)
		return nil
	}
	if werr := writer.Err(); werr != nil {
		s.log.Debug("stream client gone", "id", id, "error", werr)
		return nil
	}
	g := s.generation(id, created, res)
	s.save(body, g)
	_ = writer.Complete(g)
	return nil
}

func (s *Server) resolve(body GenerateRequest) inference.Request {
	req := inference.ResolveRequest(s.cfg.Defaults.Merge(body.options()))
	if len(body.StopTokens) > 0 {
		req.StopTokens = body.StopTokens
	}
	return req
}

func (s *Server) generation(id string, created time.Time, res *inference.Result) Generation {
	return Generation{
		ID:           id,
		Object:       "generation",
		CreatedAt:    created.Unix(),
		Model:        s.cfg.ModelID,
		PromptTokens: res.PromptTokens,
		Samples:      res.Samples,
		OutputText:   res.Text(),
		Finish:       res.Finish,
		Seed:         res.Seed,
		Usage: Usage{
			PromptTokens:     res.Stats.PromptTokens,
			CompletionTokens: res.Stats.TokensGenerated,
			DurationMS:       res.Stats.Duration.Milliseconds(),
			TokensPerSecond:  res.Stats.TPS,
		},
	}
}

func (s *Server) save(body GenerateRequest, g Generation) {
	if body.Store != nil && !*body.Store {
		return
	}
	s.store.Save(g)
}

func (s *Server) handleGetGeneration(c *echo.Context) error {
	g, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "generation not found")
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) handleDeleteGeneration(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "generation not found")
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: "generation.deleted", Deleted: true})
}
