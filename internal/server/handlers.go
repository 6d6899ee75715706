package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"docchat/internal/manifest"
	"docchat/internal/service"
)

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleUpload(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file part")
	}
	if header.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No selected file")
	}
	src, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read upload")
	}
	defer src.Close()

	rec, err := s.svc.IngestUpload(c.Request().Context(), header.Filename, src)
	switch {
	case errors.Is(err, service.ErrDuplicate):
		s.metrics.uploads.WithLabelValues("duplicate").Inc()
		return c.JSON(http.StatusOK, echo.Map{
			"message": "File already processed earlier. Ready to chat!",
		})
	case errors.Is(err, service.ErrNoText):
		s.metrics.uploads.WithLabelValues("error").Inc()
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to extract text from PDF")
	case err != nil:
		s.metrics.uploads.WithLabelValues("error").Inc()
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.metrics.uploads.WithLabelValues("ok").Inc()
	s.metrics.chunks.Set(float64(s.svc.ChunkCount()))
	return c.JSON(http.StatusOK, echo.Map{
		"message": "File uploaded, processed, and stored successfully!",
		"file":    rec,
	})
}

func (s *Server) handleProcessed(c echo.Context) error {
	records := s.svc.Processed()
	if records == nil {
		records = []manifest.Record{}
	}
	return c.JSON(http.StatusOK, echo.Map{"processed": records})
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	answer, err := s.svc.Query(c.Request().Context(), req.Message)
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, "Message cannot be empty")
	case err != nil:
		s.metrics.queries.WithLabelValues("error").Inc()
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.metrics.queries.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, echo.Map{"response": answer})
}
