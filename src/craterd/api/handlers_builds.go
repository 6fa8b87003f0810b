package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/craterbuild/crater/src/common/errors"
)

// handleSubmitBuild validates and enqueues a build
func (a *API) handleSubmitBuild(c *gin.Context) {
	var req SubmitBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrInvalidBuildInput.
			WithMessage(err.Error()).ToResponse())
		return
	}

	job, err := a.buildManager.SubmitBuild(&req.Params, subjectOf(getClaims(c)))
	if err != nil {
		c.JSON(errors.GetHTTPStatus(err), errors.NewResponse(err))
		return
	}

	c.JSON(http.StatusCreated, buildResponse(job))
}

// handleListBuilds returns recent builds, most recent first
func (a *API) handleListBuilds(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	jobs, err := a.buildManager.BuildJobRepo().List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errors.NewResponse(err))
		return
	}

	responses := make([]BuildResponse, 0, len(jobs))
	for i := range jobs {
		responses = append(responses, buildResponse(&jobs[i]))
	}

	c.JSON(http.StatusOK, gin.H{"builds": responses, "count": len(responses)})
}

// handleGetBuild returns one build's current state
func (a *API) handleGetBuild(c *gin.Context) {
	job, err := a.buildManager.GetBuildStatus(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errors.NewResponse(err))
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, errors.ErrBuildNotFound.ToResponse())
		return
	}

	c.JSON(http.StatusOK, buildResponse(job))
}

// handleCancelBuild requests cancellation of a pending or running build.
// Cancellation is cooperative: the build stops at its next checkpoint.
func (a *API) handleCancelBuild(c *gin.Context) {
	id := c.Param("id")

	if err := a.buildManager.CancelBuild(id); err != nil {
		c.JSON(errors.GetHTTPStatus(err), errors.NewResponse(err))
		return
	}

	log.Info("Build cancellation accepted", "build_id", id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

// handleGetBuildLogs returns a build's log entries
func (a *API) handleGetBuildLogs(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))

	job, err := a.buildManager.GetBuildStatus(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errors.NewResponse(err))
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, errors.ErrBuildNotFound.ToResponse())
		return
	}

	logs, err := a.buildManager.BuildJobRepo().GetLogs(id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errors.NewResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"build_id": id, "logs": logs})
}

// handleGetBuildDocument streams the archived workflow document. The
// document is stored xz-compressed and served as stored.
func (a *API) handleGetBuildDocument(c *gin.Context) {
	id := c.Param("id")

	job, err := a.buildManager.GetBuildStatus(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errors.NewResponse(err))
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, errors.ErrBuildNotFound.ToResponse())
		return
	}
	if job.DocumentKey == "" {
		c.JSON(http.StatusNotFound, errors.ErrObjectNotFound.
			WithMessage("build document not archived").ToResponse())
		return
	}

	reader, info, err := a.storage.Download(c.Request.Context(), job.DocumentKey)
	if err != nil {
		c.JSON(errors.GetHTTPStatus(err), errors.NewResponse(err))
		return
	}
	defer reader.Close()

	c.Header("Content-Type", info.ContentType)
	c.Header("Content-Disposition", `attachment; filename="`+id+`.json.xz"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		log.Warn("Streaming build document failed", "build_id", id, "error", err)
	}
}
