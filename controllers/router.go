package controllers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	uuid "github.com/twinj/uuid"
	"gorm.io/gorm"

	"labelapi/workflow"
)

type RouterConfig struct {
	DB          *gorm.DB
	Engine      *workflow.Engine
	Blobs       BlobStore
	Build       BuildInfo
	CorsOrigins []string
	StorageRoot string
	ExportRoot  string
}

// corsMiddleware CORS for the configured origins, allowing:
// - PUT, GET, POST and PATCH methods
// - Origin and the authentication headers
// - Preflight requests cached for 12 hours
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"PUT", "GET", "POST", "PATCH"},
		AllowHeaders:  []string{"Origin", "Content-Type", KeyHeader, SecretHeader},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

// requestIDMiddleware Generate a UUID and attach it to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		_uuid := uuid.NewV4()
		c.Writer.Header().Set("X-Request-Id", _uuid.String())
		c.Next()
	}
}

// NewRouter Register all routes of the API
func NewRouter(config RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware(config.CorsOrigins))
	r.Use(requestIDMiddleware())

	info := r.Group("/info")
	{
		info.GET("/version", Version(config.Build))
		info.GET("/status", Status(config.DB, config.StorageRoot, config.ExportRoot))
	}

	// Blob access is granted by the signed token in the URL
	blobs := r.Group("/blobs")
	{
		blobs.GET("/*path", GetBlob(config.Blobs))
		blobs.PUT("/*path", PutBlob(config.Blobs))
	}

	v1 := r.Group("/api/v1")
	v1.Use(gzip.Gzip(gzip.DefaultCompression))
	v1.Use(AuthMiddleware(config.DB))
	{
		v1.GET("/campaigns", ListCampaigns(config.Engine))
		v1.POST("/campaigns", CreateCampaign(config.Engine))
		v1.GET("/campaigns/:id", GetCampaign(config.Engine))
		v1.PUT("/campaigns/:id", ChangeCampaignStatus(config.Engine))
		v1.GET("/campaigns/:id/images", CampaignImages(config.Engine))
		v1.POST("/campaigns/:id/images", AddCampaignImages(config.Engine))
		v1.GET("/campaigns/:id/objects", CampaignObjects(config.Engine))
		v1.PUT("/campaigns/:id/objects", AddObjects(config.Engine))

		v1.GET("/image_sets", ListImageSets(config.Engine))
		v1.POST("/image_sets", CreateImageSet(config.Engine))
		v1.PUT("/image_sets/:id", ChangeImageSetStatus(config.Engine))
		v1.GET("/image_sets/:id/images", ImageSetImages(config.Engine))
		v1.POST("/image_sets/:id/images", AddImageSetImages(config.Engine))

		v1.GET("/images", FindImages(config.Engine))
		v1.GET("/images/:id", GetImage(config.Engine))
		v1.GET("/images/:id/objects", GetImageObjects(config.Engine))
	}
	return r
}
