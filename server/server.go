package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const DefaultLongPollTimeout = 10 * time.Second

type Option func(*Options)

type Options struct {
	// LongPollTimeout bounds how long a topic get waits for a new message.
	LongPollTimeout time.Duration
	Logger          *zap.Logger
	Clock           clock.Clock
	// Registry, when set, receives the server metrics and is served on
	// /metrics.
	Registry *prometheus.Registry
}

func defaultOptions() Options {
	return Options{
		LongPollTimeout: DefaultLongPollTimeout,
		Logger:          zap.NewNop(),
		Clock:           clock.New(),
	}
}

func WithLongPollTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.LongPollTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		if c != nil {
			o.Clock = c
		}
	}
}

func WithMetrics(reg *prometheus.Registry) Option {
	return func(o *Options) {
		o.Registry = reg
	}
}

// Server serves the bridge endpoints over a Broker.
type Server struct {
	broker   Broker
	registry *Registry
	options  Options
	logger   *zap.Logger
	engine   *gin.Engine
	requests *prometheus.CounterVec
}

func NewServer(broker Broker, opts ...Option) *Server {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	s := &Server{
		broker:   broker,
		registry: NewRegistry(broker, options.Clock, options.Logger),
		options:  options,
		logger:   options.Logger,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rosweb",
				Subsystem: "bridge",
				Name:      "requests_total",
				Help:      "Bridge requests by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestID(), s.observe())

	ros := engine.Group("/ros")
	ros.GET("/subscribe/*name", s.handleSubscribe)
	ros.GET("/get/*name", s.handleGet)
	ros.GET("/pub/*rest", s.handlePublish)
	ros.GET("/unsubscribe/*name", s.handleUnsubscribe)
	ros.GET("/announce/*name", s.handleAnnounce)
	ros.GET("/tfsub/*name", s.handleTfSubscribe)
	ros.GET("/tfget/*name", s.handleTfGet)
	ros.GET("/startup", s.handleRobotState(RobotRunning))
	ros.GET("/shutdown", s.handleRobotState(RobotStopped))

	if options.Registry != nil {
		options.Registry.MustRegister(s.requests)
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(options.Registry, promhttp.HandlerOpts{})))
	}

	s.engine = engine
	return s
}

// Handler returns the HTTP handler of the bridge.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Registry exposes the topic registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close drops every broker subscription held by the server. The broker
// itself is left open.
func (s *Server) Close() {
	s.registry.Close()
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.options.Clock.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		s.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()

		s.logger.Debug("bridge request",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", s.options.Clock.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := http.StatusBadGateway
	if errors.Is(err, ErrNotFound) {
		code = http.StatusNotFound
	}
	s.logger.Warn("bridge request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.String(code, err.Error())
}

func (s *Server) handleSubscribe(c *gin.Context) {
	if err := s.registry.Subscribe(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "subscribed")
}

func (s *Server) handleGet(c *gin.Context) {
	payload, ok, err := s.registry.Next(c.Request.Context(), c.Param("name"), s.options.LongPollTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.String(http.StatusOK, payload)
}

func (s *Server) handlePublish(c *gin.Context) {
	topic, msg := s.registry.SplitPublish(c.Param("rest"))
	if err := s.broker.Publish(c.Request.Context(), topic, msg); err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "published")
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	s.registry.Unsubscribe(c.Param("name"))
	c.String(http.StatusOK, "unsubscribed")
}

func (s *Server) handleAnnounce(c *gin.Context) {
	if err := s.registry.Announce(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "announced")
}

func (s *Server) handleTfSubscribe(c *gin.Context) {
	if err := s.broker.SubscribeTransform(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "subscribed")
}

func (s *Server) handleTfGet(c *gin.Context) {
	value, err := s.broker.Transform(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, value)
}

func (s *Server) handleRobotState(state RobotState) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.broker.SetRobotState(c.Request.Context(), state); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": state})
	}
}
