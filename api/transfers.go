package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mikebank/transfer-service/api/middleware"
	model2 "github.com/mikebank/transfer-service/api/model"
	"github.com/mikebank/transfer-service/internal/apierror"
)

// CreateTransfer admits a transfer for asynchronous processing.
//
// Responses:
// - 202 Accepted: The transfer was admitted and will be processed.
// - 200 OK: A transfer with the same idempotency key already exists; its
//   current state is returned.
// - 400 Bad Request: The request body failed validation.
// - 409 Conflict: The idempotency key was used with a different request body.
func (a Api) CreateTransfer(c *gin.Context) {
	var newTransfer model2.CreateTransfer
	if err := c.ShouldBindJSON(&newTransfer); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newTransfer.ValidateCreateTransfer(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	transfer := newTransfer.ToTransfer()
	// the gateway authenticates the caller and injects the principal
	if principal := c.GetHeader(middleware.PrincipalHeader); principal != "" {
		if transfer.MetaData == nil {
			transfer.MetaData = map[string]interface{}{}
		}
		transfer.MetaData["principal"] = principal
	}

	resp, created, err := a.service.SubmitTransfer(c.Request.Context(), transfer)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if !created {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// GetTransfer returns a transfer by its ID.
func (a Api) GetTransfer(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.service.GetTransfer(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAllTransfers returns transfers newest first, with limit/offset paging.
func (a Api) GetAllTransfers(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	transfers, err := a.service.GetAllTransfers(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, transfers)
}

// RecoverTransfers triggers an immediate recovery sweep for stuck transfers.
func (a Api) RecoverTransfers(c *gin.Context) {
	var req model2.RecoverTransfersRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := req.ValidateRecoverTransfersRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	threshold := time.Duration(req.ThresholdMinutes) * time.Minute
	recovered, err := a.service.RecoverTransfers(c.Request.Context(), threshold)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}
