package controllers

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string
	Branch  string
	Commit  string
}

// Version Return the version of the running binary
func Version(info BuildInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "Version: %s (branch: %s, commit: %s)", info.Version, info.Branch, info.Commit)
	}
}

// Status Check the database and the storage directories, answering 500 when anything fails
func Status(db *gorm.DB, storageRoot string, exportRoot string) gin.HandlerFunc {
	return func(c *gin.Context) {
		messages := []string{}
		database := gin.H{"Can connect": false}
		if sqlDB, err := db.DB(); err != nil {
			messages = append(messages, fmt.Sprintf("Cannot get database handle: %v", err))
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			messages = append(messages, fmt.Sprintf("Cannot connect to database: %v", err))
		} else {
			database["Can connect"] = true
		}

		healthy := database["Can connect"] == true
		dirs := gin.H{}
		for name, dir := range map[string]string{"blobstorage": storageRoot, "datasets": exportRoot} {
			info, err := os.Stat(dir)
			ok := err == nil && info.IsDir()
			if !ok {
				messages = append(messages, fmt.Sprintf("Directory %s for %s is not available", dir, name))
				healthy = false
			}
			dirs[name] = gin.H{"Directory exists": ok}
		}

		result := gin.H{"database": database, "messages": messages}
		for name, v := range dirs {
			result[name] = v
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusInternalServerError
		}
		c.JSON(code, result)
	}
}
