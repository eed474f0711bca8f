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

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Dashboard sets up the operational routes: the health check, store
// statistics and the exported comparison history of a reference video.
//
// Routes:
//   - GET /health
//   - GET /stats
//   - GET /history/:reference_id?limit=<n> (needs a BigQuery dataset)
func Dashboard(r *gin.RouterGroup, h *Handlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"store":  h.StoreDriver,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			out, err := h.Comparisons.Stats(c.Request.Context())
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}

	r.GET("/history/:reference_id", func(c *gin.Context) {
		if h.History == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "comparison history is not configured"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil {
			limit = 50
		}
		out, err := h.History.ForReference(c.Request.Context(), c.Param("reference_id"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})
}
