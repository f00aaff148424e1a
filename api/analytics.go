package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikebank/transfer-service/internal/apierror"
)

// GetAccountTurnover reports an account's completed outgoing volume for a
// period. from and to are required RFC 3339 timestamps.
func (a Api) GetAccountTurnover(c *gin.Context) {
	ref, passed := c.Params.Get("ref")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account ref is required. pass it in the route /:ref"})
		return
	}

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC 3339 timestamp"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be an RFC 3339 timestamp"})
		return
	}

	turnovers, err := a.service.GetAccountTurnover(c.Request.Context(), ref, from, to)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, turnovers)
}

// GetTopTransfers returns an account's largest completed outgoing transfers
// since the optional from timestamp, limited to the top N (default 3).
func (a Api) GetTopTransfers(c *gin.Context) {
	ref, passed := c.Params.Get("ref")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account ref is required. pass it in the route /:ref"})
		return
	}

	var from time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC 3339 timestamp"})
			return
		}
		from = parsed
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "3"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	transfers, err := a.service.GetTopTransfers(c.Request.Context(), ref, from, limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, transfers)
}
