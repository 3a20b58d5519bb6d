package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gus-bms/db-checker/internal/model"
	"github.com/gus-bms/db-checker/internal/source"
	"github.com/gus-bms/db-checker/internal/store"
	"github.com/gus-bms/db-checker/internal/version"
)

type errorResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type latestResponse struct {
	OK          bool               `json:"ok"`
	Snapshot    *model.Snapshot    `json:"snapshot"`
	ProcessList *model.ProcessList `json:"processlist"`
}

type seriesResponse struct {
	OK bool `json:"ok"`
	model.SeriesWindow
}

type healthResponse struct {
	Status  string            `json:"status"`
	Leader  bool              `json:"leader"`
	Uptime  string            `json:"uptime"`
	Version version.Info      `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{OK: false, Message: msg})
}

// failErr maps failure classes onto status codes.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrTimeout):
		fail(c, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, model.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
}

func (s *Server) handleLatest(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	snap, pl, err := s.deps.Cache.ReadLatest(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	if snap == nil || pl == nil {
		fail(c, http.StatusServiceUnavailable, "cache is warming up or stalled")
		return
	}

	c.JSON(http.StatusOK, latestResponse{OK: true, Snapshot: snap, ProcessList: pl})
}

func (s *Server) handleTimeSeries(c *gin.Context) {
	from, err := optionalInt(c, "from")
	if err != nil {
		failErr(c, err)
		return
	}
	to, err := optionalInt(c, "to")
	if err != nil {
		failErr(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	window, err := s.deps.Cache.ReadSeries(ctx, store.SeriesQuery{From: from, To: to})
	if err != nil {
		failErr(c, err)
		return
	}
	if window.Items == nil {
		window.Items = []model.Snapshot{}
	}

	c.JSON(http.StatusOK, seriesResponse{OK: true, SeriesWindow: window})
}

func (s *Server) handleLiveSnapshot(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	snap, err := s.deps.Source.FetchSnapshot(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleLiveProcessList(c *gin.Context) {
	opts := s.cfg.ProcessList

	limit, err := optionalInt(c, "limit")
	if err != nil {
		failErr(c, err)
		return
	}
	if limit != nil {
		// An explicit value is clamped, never replaced by the default.
		opts.Limit = int(min(max(*limit, 1), source.MaxLimit))
	}

	minTime, err := optionalInt(c, "minTimeSec")
	if err != nil {
		failErr(c, err)
		return
	}
	if minTime != nil {
		opts.MinElapsedSeconds = int(*minTime)
	}
	if raw, ok := c.GetQuery("includeSleep"); ok {
		opts.IncludeIdle = raw == "1" || raw == "true"
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	pl, err := s.deps.Source.FetchProcessList(ctx, opts.Normalize())
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, pl)
}

func (s *Server) handleResources(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.deps.Resources.FetchResources(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Thresholds)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp := healthResponse{
		Status:  "healthy",
		Uptime:  time.Since(s.start).Round(time.Second).String(),
		Version: version.Get(),
		Checks:  make(map[string]string, len(s.deps.Checks)),
	}
	if s.deps.IsLeader != nil {
		resp.Leader = s.deps.IsLeader()
	}

	status := http.StatusOK
	for _, hc := range s.deps.Checks {
		if err := hc.Check(ctx); err != nil {
			resp.Checks[hc.Name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}

	c.JSON(status, resp)
}

// optionalInt parses an integer query parameter. Absent or empty yields nil.
func optionalInt(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", model.ErrValidation, name)
	}
	return &v, nil
}
