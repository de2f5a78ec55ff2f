package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/log"
	"github.com/xiaoxuxiansheng/olatx/metrics"
)

const textPlain = "text/plain; charset=utf-8"

// Server 对外暴露问候接口以及协调者回调接口
type Server struct {
	opts         *Options
	orchestrator *olatx.Orchestrator
	participant  *olatx.Participant
	metrics      *metrics.ServerMetrics
	engine       *gin.Engine
}

func New(orchestrator *olatx.Orchestrator, participant *olatx.Participant, opts ...Option) *Server {
	s := Server{
		opts:         &Options{},
		orchestrator: orchestrator,
		participant:  participant,
	}
	for _, opt := range opts {
		opt(s.opts)
	}
	repair(s.opts)

	s.metrics = metrics.NewServerMetrics(s.opts.Service)
	s.engine = s.routes()
	return &s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(), observe(s.metrics), cors(s.opts.AllowedOrigins))

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api")
	api.GET("/ola", s.ola)
	api.GET("/ola-chaining", s.olaChaining)
	api.GET("/health", s.health)
	api.PUT("/:pid/terminator", s.terminate)
	api.GET("/:pid/terminator", s.status)
	api.HEAD("/:pid/participant", s.participantInfo)
	return router
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Metrics() *metrics.ServerMetrics {
	return s.metrics
}

// Run 阻塞监听 addr，ctx 结束后优雅退出
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errC := make(chan error, 1)
	go func() {
		log.Infof("ola listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	log.Infof("ola shutting down")
	return srv.Shutdown(sctx)
}

func (s *Server) ola(c *gin.Context) {
	c.Data(http.StatusOK, textPlain, []byte(s.orchestrator.Greeting()))
}

func (s *Server) health(c *gin.Context) {
	c.Data(http.StatusOK, textPlain, []byte("I'm ok"))
}

func (s *Server) olaChaining(c *gin.Context) {
	inbound := c.GetHeader(olatx.EnlistmentURIHeader)
	greetings, err := s.orchestrator.Chain(c.Request.Context(), inbound)

	outcome := "committed"
	if inbound != "" {
		outcome = "joined"
	}
	if err != nil {
		outcome = "aborted"
	}
	s.metrics.Transactions.WithLabelValues(outcome).Inc()

	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, greetings)
}

func (s *Server) terminate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, err)
		return
	}

	status, err := s.participant.Terminate(c.Request.Context(), c.Param("pid"), string(body))
	label := olatx.ParseStatus(string(body)).String()
	if label == "" {
		label = "unrecognized"
	}
	if err != nil {
		s.metrics.Transitions.WithLabelValues(label, "rejected").Inc()
		abortWithError(c, err)
		return
	}

	s.metrics.Transitions.WithLabelValues(label, "accepted").Inc()
	c.Data(http.StatusOK, textPlain, []byte(olatx.ReplyContent(string(body), status)))
}

func (s *Server) status(c *gin.Context) {
	phase, err := s.participant.Status(c.Request.Context(), c.Param("pid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, textPlain, []byte(olatx.ToStatusContent(phase.Status())))
}

func (s *Server) participantInfo(c *gin.Context) {
	link, err := s.participant.Info(requestURL(c.Request))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Link", link.String())
	c.Status(http.StatusOK)
}

// requestURL 还原请求的完整地址，反向代理场景下以 X-Forwarded-Proto 为准
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}
