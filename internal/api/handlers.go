package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/scheduler"
	"github.com/amishk599/jobsync/internal/store"
)

type listParams struct {
	Source     string `form:"source"`
	Keyword    string `form:"keyword"`
	Search     string `form:"search"`
	IsFavorite *bool  `form:"is_favorite"`
	IsHidden   *bool  `form:"is_hidden"`
	Applied    *bool  `form:"applied"`
	Status     string `form:"status"`
	DateRange  string `form:"date_range"`
	Skip       int    `form:"skip,default=0" binding:"min=0"`
	Limit      int    `form:"limit,default=100" binding:"min=1,max=1000"`
}

type listResponse struct {
	Postings []model.Posting `json:"postings"`
	Total    int             `json:"total"`
	Skip     int             `json:"skip"`
	Limit    int             `json:"limit"`
}

func (s *Server) health(c *gin.Context) {
	status, database := "healthy", "healthy"
	if err := s.store.Ping(c.Request.Context()); err != nil {
		status, database = "degraded", "unhealthy: "+err.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"database":   database,
		"ai_enabled": s.aiEnabled,
		"timestamp":  s.now().UTC(),
	})
}

func (s *Server) listPostings(c *gin.Context) {
	var p listParams
	if err := c.ShouldBindQuery(&p); err != nil {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, err.Error())
		return
	}

	q := model.PostingQuery{
		Keyword:    p.Keyword,
		Search:     p.Search,
		IsFavorite: p.IsFavorite,
		IsHidden:   p.IsHidden,
		Applied:    p.Applied,
		DateRange:  model.DateRange(strings.ToLower(p.DateRange)),
		Skip:       p.Skip,
		Limit:      p.Limit,
	}
	if q.IsHidden == nil {
		hidden := false
		q.IsHidden = &hidden
	}
	if p.Source != "" {
		src, ok := model.ParseSource(p.Source)
		if !ok {
			JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "source must be FINN or NAV")
			return
		}
		q.Source = src
	}
	if p.Status != "" {
		q.Status = model.Status(strings.ToUpper(p.Status))
		if !q.Status.Valid() {
			JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "status must be ACTIVE, INACTIVE or EXPIRED")
			return
		}
	}
	if !q.DateRange.Valid() {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "date_range must be 7days, 30days, 3months or all")
		return
	}

	postings, total, err := s.store.ListPostings(c.Request.Context(), q)
	if err != nil {
		s.internalError(c, "list postings", err)
		return
	}
	if postings == nil {
		postings = []model.Posting{}
	}
	c.JSON(http.StatusOK, listResponse{Postings: postings, Total: total, Skip: q.Skip, Limit: q.Limit})
}

func (s *Server) getPosting(c *gin.Context) {
	id, ok := postingID(c)
	if !ok {
		return
	}
	p, err := s.store.GetPosting(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "get posting", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) lookupPosting(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "url query parameter is required")
		return
	}
	p, err := s.store.GetPostingByURL(c.Request.Context(), url)
	if err != nil {
		s.storeError(c, "lookup posting", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updatePosting(c *gin.Context) {
	id, ok := postingID(c)
	if !ok {
		return
	}
	var u model.MetadataUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "invalid JSON body: "+err.Error())
		return
	}
	if u.Empty() {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "no updatable fields given")
		return
	}

	p, err := s.store.UpdateMetadata(c.Request.Context(), id, u)
	if err != nil {
		s.storeError(c, "update posting", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) hidePosting(c *gin.Context) {
	id, ok := postingID(c)
	if !ok {
		return
	}
	if err := s.store.HidePosting(c.Request.Context(), id); err != nil {
		s.storeError(c, "hide posting", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) statistics(c *gin.Context) {
	var q model.StatsQuery
	if src := c.Query("source"); src != "" {
		parsed, ok := model.ParseSource(src)
		if !ok {
			JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "source must be FINN or NAV")
			return
		}
		q.Source = parsed
	}
	if v := c.Query("include_hidden"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "include_hidden must be a boolean")
			return
		}
		q.IncludeHidden = b
	}

	stats, err := s.store.Statistics(c.Request.Context(), q)
	if err != nil {
		s.internalError(c, "statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) sources(c *gin.Context) {
	states, err := s.store.SyncStates(c.Request.Context())
	if err != nil {
		s.internalError(c, "sync states", err)
		return
	}
	if states == nil {
		states = []model.SyncState{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": states})
}

func (s *Server) listIrrelevant(c *gin.Context) {
	var params struct {
		Limit int `form:"limit,default=100" binding:"min=1,max=1000"`
	}
	if err := c.ShouldBindQuery(&params); err != nil {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "limit must be between 1 and 1000")
		return
	}
	urls, err := s.store.ListIrrelevant(c.Request.Context(), params.Limit)
	if err != nil {
		s.internalError(c, "list irrelevant urls", err)
		return
	}
	if urls == nil {
		urls = []model.IrrelevantURL{}
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func (s *Server) deleteIrrelevant(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "url query parameter is required")
		return
	}
	if err := s.store.DeleteIrrelevant(c.Request.Context(), url); err != nil {
		s.storeError(c, "delete irrelevant url", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requireScheduler(c *gin.Context) {
	if s.sched == nil {
		AbortJSONError(c, http.StatusServiceUnavailable, ErrorCodeUnavailable, "scheduler is not running in this process")
		return
	}
	c.Next()
}

func (s *Server) schedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.sched.Status()})
}

// schedulerAction adapts Trigger, Pause or Resume into a handler.
func (s *Server) schedulerAction(action func(Scheduler, string) error, done string) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := c.Param("job")
		err := action(s.sched, job)
		switch {
		case errors.Is(err, scheduler.ErrUnknownJob):
			JSONError(c, http.StatusNotFound, ErrorCodeNotFound, err.Error())
		case errors.Is(err, scheduler.ErrJobRunning):
			JSONError(c, http.StatusConflict, ErrorCodeConflict, err.Error())
		case errors.Is(err, scheduler.ErrStopping):
			JSONError(c, http.StatusServiceUnavailable, ErrorCodeUnavailable, err.Error())
		case err != nil:
			s.internalError(c, "scheduler "+done, err)
		default:
			status := http.StatusOK
			if done == "triggered" {
				status = http.StatusAccepted
			}
			c.JSON(status, gin.H{"job": job, "status": done})
		}
	}
}

func postingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		JSONError(c, http.StatusBadRequest, ErrorCodeValidation, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) storeError(c *gin.Context, what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		JSONError(c, http.StatusNotFound, ErrorCodeNotFound, what+": not found")
		return
	}
	s.internalError(c, what, err)
}

func (s *Server) internalError(c *gin.Context, what string, err error) {
	s.logger.Error("api request failed", "op", what, "error", err)
	JSONError(c, http.StatusInternalServerError, ErrorCodeInternal, what+" failed")
}
