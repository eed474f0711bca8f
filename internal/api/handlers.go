// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api defines the HTTP surface of the service under /api/v1: video
// upload and retrieval, comparisons, their reports and annotated videos, and
// range-served video streams.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/workflow"
)

// Handlers holds the services behind the routes.
type Handlers struct {
	Videos      *services.VideoService
	Comparisons *services.ComparisonService
	Workflow    *workflow.ComparisonWorkflow
	// History is optional; without it the history route answers 404.
	History     *services.ComparisonHistory
	StoreDriver string
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, model.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrMediaUnreadable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrMalformedRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, model.ErrEngineUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func roleParam(c *gin.Context) (model.Role, bool) {
	role, err := model.ParseRole(c.Param("role"))
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return role, true
}

// Register adds every route to r.
func (h *Handlers) Register(r *gin.RouterGroup) {
	h.VideoRouter(r)
	h.ComparisonRouter(r)
	Dashboard(r, h)
}

// VideoRouter sets up the /videos routes.
func (h *Handlers) VideoRouter(r *gin.RouterGroup) {
	videos := r.Group("/videos")
	{
		videos.POST("/reference", func(c *gin.Context) {
			h.upload(c, model.RoleReference)
		})
		videos.POST("/subject", func(c *gin.Context) {
			h.upload(c, model.RoleSubject)
		})

		videos.GET("", func(c *gin.Context) {
			role, err := model.ParseRole(c.DefaultQuery("role", string(model.RoleReference)))
			if err != nil {
				respondError(c, err)
				return
			}
			out, err := h.Videos.List(c.Request.Context(), role)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.GET("/:role/:id", func(c *gin.Context) {
			role, ok := roleParam(c)
			if !ok {
				return
			}
			out, err := h.Videos.Get(c.Request.Context(), c.Param("id"), role)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.DELETE("/:role/:id", func(c *gin.Context) {
			role, ok := roleParam(c)
			if !ok {
				return
			}
			if err := h.Videos.Delete(c.Request.Context(), c.Param("id"), role); err != nil {
				respondError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		videos.GET("/:role/:id/landmarks", func(c *gin.Context) {
			role, ok := roleParam(c)
			if !ok {
				return
			}
			var frameIndex *int
			if raw, ok := c.GetQuery("frame_index"); ok {
				i, err := strconv.Atoi(raw)
				if err != nil || i < 0 {
					respondError(c, fmt.Errorf("%w: frame_index %q", model.ErrInvalidArgument, raw))
					return
				}
				frameIndex = &i
			}
			out, err := h.Videos.Landmarks(c.Request.Context(), c.Param("id"), role, frameIndex)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"video_id": c.Param("id"), "role": role, "frames": out})
		})

		source := func(c *gin.Context) {
			role, ok := roleParam(c)
			if !ok {
				return
			}
			path, err := h.Videos.SourcePath(c.Request.Context(), c.Param("id"), role)
			if err != nil {
				respondError(c, err)
				return
			}
			StreamFile(c, path)
		}
		videos.GET("/:role/:id/stream", source)
		videos.HEAD("/:role/:id/stream", source)

		annotated := func(c *gin.Context) {
			role, ok := roleParam(c)
			if !ok {
				return
			}
			path, err := h.Videos.AnnotatedPath(c.Request.Context(), c.Param("id"), role)
			if err != nil {
				respondError(c, err)
				return
			}
			StreamFile(c, path)
		}
		videos.GET("/:role/:id/annotated", annotated)
		videos.HEAD("/:role/:id/annotated", annotated)
	}
}

// upload handles the multipart upload of one video.
// multipartSlack covers the form fields and part headers around the file.
const multipartSlack = 1 << 20

func (h *Handlers) upload(c *gin.Context, role model.Role) {
	if h.Videos.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Videos.MaxUploadBytes+multipartSlack)
	}
	header, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, fmt.Errorf("%w: request body exceeds %d bytes", model.ErrTooLarge, tooLarge.Limit))
			return
		}
		respondError(c, fmt.Errorf("%w: multipart field 'video' is required", model.ErrInvalidArgument))
		return
	}
	if err := h.Videos.CheckFormat(header.Filename); err != nil {
		respondError(c, err)
		return
	}
	if h.Videos.MaxUploadBytes > 0 && header.Size > h.Videos.MaxUploadBytes {
		respondError(c, fmt.Errorf("%w: %d bytes", model.ErrTooLarge, header.Size))
		return
	}

	meta := services.UploadMetadata{
		Title:       c.PostForm("title"),
		Author:      c.PostForm("author"),
		Tags:        model.ParseTags(c.PostForm("tags")),
		Description: c.PostForm("description"),
		ReferenceID: c.PostForm("reference_video_id"),
	}
	rec, err := h.ingest(c, role, header, meta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handlers) ingest(c *gin.Context, role model.Role, header *multipart.FileHeader, meta services.UploadMetadata) (*model.VideoRecord, error) {
	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}
	defer src.Close()
	return h.Videos.Ingest(c.Request.Context(), role, filepath.Base(header.Filename), src, meta)
}

// ComparisonRouter sets up the /comparisons routes.
func (h *Handlers) ComparisonRouter(r *gin.RouterGroup) {
	comparisons := r.Group("/comparisons")
	{
		comparisons.POST("", func(c *gin.Context) {
			req := &model.ComparisonRequest{}
			b := binding.Default(c.Request.Method, c.ContentType())
			if err := c.ShouldBindWith(req, b); err != nil {
				respondError(c, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err))
				return
			}
			job, err := h.Workflow.Run(c.Request.Context(), req)
			if err != nil {
				if job != nil {
					c.JSON(statusFor(err), gin.H{"error": err.Error(), "work_id": job.ID, "status": job.Status})
					return
				}
				respondError(c, err)
				return
			}
			out, err := h.Comparisons.Result(c.Request.Context(), job.ID)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		comparisons.GET("", func(c *gin.Context) {
			limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
			if err != nil || limit <= 0 {
				limit = 20
			}
			out, err := h.Comparisons.List(c.Request.Context(), limit)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		comparisons.GET("/:id", func(c *gin.Context) {
			out, err := h.Comparisons.Result(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		comparisons.GET("/:id/report", func(c *gin.Context) {
			path, err := h.Comparisons.ReportPath(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.FileAttachment(path, services.ReportFileName(c.Param("id")))
		})

		comparisons.GET("/:id/frames", func(c *gin.Context) {
			out, err := h.Comparisons.Frames(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"work_id": c.Param("id"), "frames": out})
		})

		annotated := func(c *gin.Context) {
			role, ok := roleParam(c)
			if !ok {
				return
			}
			path, err := h.Comparisons.AnnotatedPath(c.Request.Context(), c.Param("id"), role)
			if err != nil {
				respondError(c, err)
				return
			}
			StreamFile(c, path)
		}
		comparisons.GET("/:id/annotated/:role", annotated)
		comparisons.HEAD("/:id/annotated/:role", annotated)
	}
}
