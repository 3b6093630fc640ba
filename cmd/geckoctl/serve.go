package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/geckoctl/internal/gecko"
	"github.com/danmuck/geckoctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// maxHTTPDump caps the range one GET /memory request may read.
const maxHTTPDump = 16 << 20

type bridge struct {
	session   *gecko.Session
	startedAt time.Time
	router    *gin.Engine
}

func newBridge(s *gecko.Session, corsOrigins []string) *bridge {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(s.ID()))
	if len(corsOrigins) == 0 {
		corsOrigins = defaultCLIConfig().CORSOrigins
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	b := &bridge{session: s, startedAt: time.Now(), router: r}
	b.registerRoutes()
	return b
}

func (b *bridge) registerRoutes() {
	r := b.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(b.startedAt).String(),
			"session":   b.session.ID(),
			"connected": b.session.Connected(),
			"agent":     b.session.Host() + ":" + strconv.Itoa(b.session.Port()),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	agent := r.Group("/", b.ensureConnected)
	agent.GET("/status", func(c *gin.Context) {
		st, err := b.session.Status(c.Request.Context())
		if err != nil {
			b.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": st.String(), "code": int(st)})
	})
	agent.GET("/version", func(c *gin.Context) {
		ctx := c.Request.Context()
		version, err := b.session.VersionRequest(ctx)
		if err != nil {
			b.fail(c, err)
			return
		}
		osVersion, err := b.session.OSVersionRequest(ctx)
		if err != nil {
			b.fail(c, err)
			return
		}
		kernVersion, err := b.session.KernelVersionRequest(ctx)
		if err != nil {
			b.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"agent": version, "os": osVersion, "kernel": kernVersion})
	})
	agent.GET("/title", func(c *gin.Context) {
		ctx := c.Request.Context()
		titleID, err := b.session.TitleIDRequest(ctx)
		if err != nil {
			b.fail(c, err)
			return
		}
		name, err := b.session.GameNameRequest(ctx)
		if err != nil {
			b.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"title_id": titleID, "name": name})
	})
	agent.GET("/regions", func(c *gin.Context) {
		regions, err := b.session.MemoryRegionRequest(c.Request.Context())
		if err != nil {
			b.fail(c, err)
			return
		}
		out := make([]gin.H, 0, len(regions))
		for _, r := range regions {
			out = append(out, gin.H{"start": r.Start, "end": r.End(), "size": r.Size, "type": r.Type})
		}
		c.JSON(http.StatusOK, gin.H{"regions": out})
	})
	agent.GET("/peek/:addr", func(c *gin.Context) {
		addr, err := parseUint32(c.Param("addr"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, err := b.session.Peek(c.Request.Context(), addr)
		if err != nil {
			b.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": addr &^ 3, "value": v})
	})
	agent.GET("/memory", b.handleMemory)
	agent.POST("/cheats", func(c *gin.Context) {
		text, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := b.session.SendCheat(c.Request.Context(), string(text))
		if err != nil {
			b.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})
	agent.POST("/cheats/:id/:action", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 0, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()
		switch c.Param("action") {
		case "enable":
			err = b.session.EnableCheat(ctx, int32(id))
		case "disable":
			err = b.session.DisableCheat(ctx, int32(id))
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
			return
		}
		if err != nil {
			b.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	agent.DELETE("/cheats/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 0, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := b.session.RemoveCheat(c.Request.Context(), int32(id)); err != nil {
			b.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// handleMemory serves GET /memory?start=&end= as raw bytes.
func (b *bridge) handleMemory(c *gin.Context) {
	start, err := parseUint32(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseUint32(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if end >= start && end-start > maxHTTPDump {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range exceeds 16MiB"})
		return
	}
	win, err := gecko.NewWindow(start, end)
	if err != nil {
		b.fail(c, err)
		return
	}
	res, err := b.session.DumpWindow(c.Request.Context(), win, nil)
	if err != nil {
		b.fail(c, err)
		return
	}
	if res.Cancelled {
		c.Status(http.StatusRequestTimeout)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", win.Bytes())
}

// ensureConnected reconnects a session that a previous fault dropped.
func (b *bridge) ensureConnected(c *gin.Context) {
	if err := b.session.EnsureConnected(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "agent unreachable"})
		return
	}
	c.Next()
}

func (b *bridge) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, gecko.KindInvalidAddress), errors.Is(err, gecko.KindStreamSizeInvalid) && !gecko.IsFatal(err):
		status = http.StatusBadRequest
	case gecko.KindOf(err) == 0 && !gecko.IsFatal(err) && c.Request.Context().Err() == nil:
		// Local validation, such as a malformed cheat description.
		status = http.StatusBadRequest
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error(), "fatal": gecko.IsFatal(err)})
}

func runServe(ctx context.Context, inv *invocation) error {
	b := newBridge(inv.session, inv.cfg.CORSOrigins)
	srv := &http.Server{
		Addr:              inv.cfg.ListenAddr,
		Handler:           b.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("session", inv.session.ID()).Msg("geckoctl serve listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
