package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/rezonia/nfce-parser/internal/model"
	"github.com/rezonia/nfce-parser/internal/processor"
)

// DefaultMaxBodySize caps request bodies
const DefaultMaxBodySize int64 = 5 << 20

// Config holds server configuration
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxBodySize    int64
	Debug          bool
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	pipeline *processor.Pipeline
	logger   *slog.Logger
}

// Option configures the server
type Option func(*Server)

// WithPipeline sets the processing pipeline
func WithPipeline(p *processor.Pipeline) Option {
	return func(s *Server) {
		s.pipeline = p
	}
}

// WithLogger sets the request logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new API server
func NewServer(config *Config, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}

	s := &Server{
		config: config,
		router: gin.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.pipeline == nil {
		s.pipeline = processor.NewPipeline(processor.WithLogger(s.logger))
	}

	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.logger))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/nfce/parse", s.handleParse)
		v1.POST("/nfce/parse/html", s.handleParseHTML)
		v1.POST("/nfce/validate", s.handleValidate)
		v1.GET("/nfce/proxy", s.handleProxy)

		v1.GET("/layouts", s.handleLayouts)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleParse(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	s.respond(c, s.pipeline.Process(ctx, req))
}

func (s *Server) handleParseHTML(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	s.respond(c, s.pipeline.Process(ctx, processor.Request{HTML: string(body)}))
}

func (s *Server) handleValidate(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	result := s.pipeline.Process(ctx, req)

	var accErr *model.AcceptanceError
	if result.Error != nil && !errors.As(result.Error, &accErr) {
		s.writeError(c, result)
		return
	}

	c.JSON(http.StatusOK, buildValidation(result))
}

func (s *Server) handleProxy(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing url query parameter"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	body, err := s.pipeline.Fetcher().Fetch(ctx, url)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (s *Server) handleLayouts(c *gin.Context) {
	layouts := s.pipeline.Parser().Registry().Layouts()

	resp := LayoutsResponse{Layouts: make([]LayoutInfo, 0, len(layouts))}
	for _, l := range layouts {
		resp.Layouts = append(resp.Layouts, LayoutInfo{
			Name:    l.Name,
			Version: l.Version,
			Detect:  l.Detect,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Helper functions

func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodySize)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	return body, true
}

func (s *Server) bindRequest(c *gin.Context) (processor.Request, bool) {
	var req processor.Request

	body, ok := s.readBody(c)
	if !ok {
		return req, false
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: model.NewMissingInputError().Error()})
		return req, false
	}
	if err := binding.JSON.BindBody(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Details: err.Error()})
		return req, false
	}
	return req, true
}

func (s *Server) respond(c *gin.Context, result *processor.Result) {
	if result.Error != nil {
		s.writeError(c, result)
		return
	}
	c.JSON(http.StatusOK, ParseResponse{
		Result:     result.Receipt,
		Source:     result.Source.String(),
		Layout:     result.Layout,
		Warnings:   result.Warnings,
		DurationMS: result.Duration.Milliseconds(),
	})
}

func (s *Server) writeError(c *gin.Context, result *processor.Result) {
	status := statusFor(result.Error)

	var accErr *model.AcceptanceError
	if errors.As(result.Error, &accErr) {
		c.JSON(status, AcceptanceResponse{
			Error:    result.Error.Error(),
			Result:   accErr.Result,
			Warnings: result.Warnings,
		})
		return
	}
	c.JSON(status, ErrorResponse{Error: result.Error.Error(), Warnings: result.Warnings})
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	var inputErr *model.InputError
	if errors.As(err, &inputErr) {
		if inputErr.Kind == model.InputFetch {
			return http.StatusBadGateway
		}
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}

func buildValidation(result *processor.Result) ValidationResponse {
	resp := ValidationResponse{Warnings: result.Warnings}
	if result.Error != nil {
		resp.Errors = append(resp.Errors, result.Error.Error())
	}
	if result.Receipt != nil {
		resp.Checked, resp.Failed = result.Receipt.ValidatedCount()
	}
	if resp.Failed > 0 {
		resp.Errors = append(resp.Errors, "one or more items failed cross-validation")
	}
	resp.Valid = len(resp.Errors) == 0
	return resp
}
