package controllers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"labelapi/storage"
)

// BlobStore serves and receives files for holders of a signed URL.
type BlobStore interface {
	Verify(token string, p string, permission storage.Permission) error
	Open(p string) (*os.File, error)
	Put(p string, r io.Reader) (int64, error)
}

func blobPath(c *gin.Context) string {
	return strings.TrimLeft(c.Param("path"), "/")
}

func respondBlobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Blob does not exist"})
	case errors.Is(err, storage.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid blob path"})
	default:
		log.WithError(err).Error("Blob request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// GetBlob Serve a stored file to the holder of a read token
func GetBlob(store BlobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := blobPath(c)
		if err := store.Verify(c.Query("token"), p, storage.PermissionRead); err != nil {
			respondBlobError(c, err)
			return
		}
		f, err := store.Open(p)
		if err != nil {
			respondBlobError(c, err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			respondBlobError(c, err)
			return
		}
		http.ServeContent(c.Writer, c.Request, path.Base(p), info.ModTime(), f)
	}
}

// PutBlob Store the request body for the holder of a write token
func PutBlob(store BlobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := blobPath(c)
		if err := store.Verify(c.Query("token"), p, storage.PermissionWrite); err != nil {
			respondBlobError(c, err)
			return
		}
		n, err := store.Put(p, c.Request.Body)
		if err != nil {
			respondBlobError(c, err)
			return
		}
		log.Debug("Stored blob ", p)
		c.JSON(http.StatusCreated, gin.H{"data": gin.H{"path": p, "size": n}})
	}
}
