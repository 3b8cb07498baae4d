package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"promptcron/internal/expand"
	"promptcron/internal/schedule"
	"promptcron/internal/task/scheduler"
)

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.GET("/schedules", resolve(http.StatusOK, s.listSchedules))
	api.POST("/schedules", resolve(http.StatusOK, s.createSchedule))
	api.POST("/schedules/preview", resolve(http.StatusOK, s.previewSchedule))
	api.DELETE("/schedules/:id", resolve(http.StatusOK, s.deleteSchedule))
	api.POST("/schedules/:id/run", resolve(http.StatusAccepted, s.runSchedule))
	api.GET("/status", resolve(http.StatusOK, s.status))
}

func (s *Server) listSchedules(c *gin.Context) (any, *Error) {
	list, err := s.backend.ListSchedules(c.Request.Context())
	if err != nil {
		return nil, errorFor(err)
	}
	out := make([]ScheduleResponse, 0, len(list))
	for _, sc := range list {
		out = append(out, toResponse(sc, s.backend.NextRuns(sc.ID, s.cfg.NextRuns)))
	}
	return out, nil
}

func (s *Server) createSchedule(c *gin.Context) (any, *Error) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
	sc, err := s.backend.CreateSchedule(c.Request.Context(), req.input())
	if err != nil {
		return nil, errorFor(err)
	}
	return CreateResponse{
		Message:  "Schedule created successfully",
		Schedule: toResponse(sc, s.backend.NextRuns(sc.ID, s.cfg.NextRuns)),
	}, nil
}

func (s *Server) deleteSchedule(c *gin.Context) (any, *Error) {
	id := c.Param("id")
	ok, err := s.backend.DeleteSchedule(c.Request.Context(), id)
	if err != nil {
		return nil, errorFor(err)
	}
	if !ok {
		return nil, &Error{Code: http.StatusNotFound, Message: "Schedule not found"}
	}
	return MessageResponse{Message: "Schedule deleted successfully"}, nil
}

func (s *Server) runSchedule(c *gin.Context) (any, *Error) {
	id := c.Param("id")
	if err := s.backend.RunSchedule(c.Request.Context(), id); err != nil {
		return nil, errorFor(err)
	}
	return MessageResponse{Message: "Schedule run enqueued"}, nil
}

// previewSchedule validates a request and shows what a firing would produce,
// without persisting or arming anything.
func (s *Server) previewSchedule(c *gin.Context) (any, *Error) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
	in := req.input()
	if strings.TrimSpace(in.ID) == "" {
		in.ID = "preview"
	}
	sc, err := schedule.Validate(in)
	if err != nil {
		return nil, errorFor(err)
	}
	runs, err := scheduler.PreviewRuns(sc, time.Now(), s.cfg.NextRuns)
	if err != nil {
		return nil, errorFor(err)
	}
	variants := expand.Expand(sc.Prompt, sc.EmailTitle, sc.PromptVariables)
	return PreviewResponse{
		Active:   nonNil(expand.Active(sc.Prompt, sc.EmailTitle, sc.PromptVariables)),
		Count:    len(variants),
		Variants: toVariants(variants),
		NextRuns: formatTimes(runs),
	}, nil
}

func (s *Server) status(c *gin.Context) (any, *Error) {
	return s.backend.Status(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
