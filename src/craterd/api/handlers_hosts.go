package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/craterbuild/crater/src/common/errors"
)

// handleListHosts returns every pool host with its platforms and current
// slot occupancy from the ledger
func (a *API) handleListHosts(c *gin.Context) {
	platformsByHost := make(map[string][]string)
	for _, platform := range a.pool.Platforms() {
		hosts, err := a.pool.Hosts(platform)
		if err != nil {
			continue
		}
		for _, host := range hosts {
			platformsByHost[host.Hostname] = append(platformsByHost[host.Hostname], platform)
		}
	}

	responses := make([]HostResponse, 0, len(platformsByHost))
	for _, host := range a.pool.AllHosts() {
		occupied, err := a.ledger.Occupied(host.Hostname)
		if err != nil {
			c.JSON(http.StatusInternalServerError, errors.NewResponse(err))
			return
		}
		responses = append(responses, HostResponse{
			Hostname:  host.Hostname,
			Platforms: platformsByHost[host.Hostname],
			Enabled:   host.Enabled,
			Slots:     host.Slots,
			Occupied:  occupied,
		})
	}

	c.JSON(http.StatusOK, gin.H{"hosts": responses, "count": len(responses)})
}

// handleGetHostLeases returns the active leases recorded for a host
func (a *API) handleGetHostLeases(c *gin.Context) {
	hostname := c.Param("hostname")

	leases, err := a.ledger.Leases(hostname)
	if err != nil {
		c.JSON(errors.GetHTTPStatus(err), errors.NewResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"hostname": hostname, "leases": leases})
}

// handleReconcile drops leases older than the given age across all hosts.
// Owner liveness is not checked here; age is the only criterion an operator
// can assert remotely.
func (a *API) handleReconcile(c *gin.Context) {
	maxAgeHours, err := strconv.Atoi(c.DefaultQuery("max_age_hours", "24"))
	if err != nil || maxAgeHours <= 0 {
		c.JSON(http.StatusBadRequest, errors.ErrInvalidBuildInput.
			WithMessage("max_age_hours must be a positive integer").ToResponse())
		return
	}

	released, err := a.ledger.Reconcile(nil, time.Duration(maxAgeHours)*time.Hour)
	if err != nil {
		c.JSON(errors.GetHTTPStatus(err), errors.NewResponse(err))
		return
	}

	log.Info("Ledger reconciliation completed", "released", released,
		"max_age_hours", maxAgeHours)
	c.JSON(http.StatusOK, ReconcileResponse{Released: released})
}
