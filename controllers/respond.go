package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"labelapi/workflow"
)

// respondError Write err with the status code of its kind. Anything that is not a workflow
// error is logged and hidden behind a 500.
func respondError(c *gin.Context, err error) {
	var werr *workflow.Error
	if errors.As(err, &werr) {
		c.JSON(werr.StatusCode(), gin.H{"error": werr.Message})
		return
	}
	log.WithField("path", c.FullPath()).WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// paramID Parse the id path parameter
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

// queryPage Read page and per_page from the query, leaving defaults to the workflow
func queryPage(c *gin.Context) workflow.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	return workflow.Page{Page: page, PerPage: perPage}
}

// queryIDs Parse a comma separated list of ids, e.g. ?campaigns=1,2
func queryIDs(c *gin.Context, name string) ([]uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", name, part)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
