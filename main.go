package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"labelapi/controllers"
	"labelapi/export"
	"labelapi/models"
	"labelapi/storage"
	"labelapi/utils"
	"labelapi/workflow"
)

// Set with -ldflags at build time
var (
	version = "?"
	branch  = "?"
	commit  = "?"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var debugMode bool

	rootCmd := &cobra.Command{
		Use:           "labelapi",
		Short:         "Image labeling campaign API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging and gin debug mode")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(configPath, debugMode)
			if err != nil {
				return err
			}
			return serve(config, debugMode)
		},
	})
	rootCmd.AddCommand(newCreateUserCommand(&configPath, &debugMode))
	return rootCmd
}

// loadConfig Read the config and set up logging and the database connection
func loadConfig(configPath string, debugMode bool) (*utils.Config, error) {
	config, err := utils.NewConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := utils.ConfigureLogging(config.Log, debugMode || config.Server.Debug); err != nil {
		return nil, err
	}

	dialector, err := config.Database.Dialector()
	if err != nil {
		return nil, err
	}
	if err := models.ConnectDataBase(dialector); err != nil {
		return nil, err
	}
	return config, nil
}

func serve(config *utils.Config, debugMode bool) error {
	log.Info("Starting label API...")

	// Debug mode enables gin-gonic debug mode
	if !debugMode && !config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	blobs, err := storage.NewLocal(config.Storage.Root, config.Server.PublicURL, []byte(config.Storage.SigningKey))
	if err != nil {
		return err
	}
	datasets, err := export.NewLocal(config.Export.Root)
	if err != nil {
		return err
	}

	jobs := workflow.NewRunner(config.Jobs.Workers, config.Jobs.QueueSize)
	engine := workflow.NewEngine(models.DB, blobs, datasets, jobs, workflow.Options{
		ImageSetContainer: config.Storage.ImageSetContainer,
		ImageSetFolder:    config.Storage.ImageSetFolder,
		ImageReadTTL:      config.Storage.ImageReadTTL(),
		UploadTTL:         config.Storage.UploadTTL(),
	})
	if err := engine.Recover(context.Background()); err != nil {
		log.WithError(err).Warn("Failed to reschedule unfinished campaigns and image sets")
	}

	r := controllers.NewRouter(controllers.RouterConfig{
		DB:          models.DB,
		Engine:      engine,
		Blobs:       blobs,
		Build:       controllers.BuildInfo{Version: version, Branch: branch, Commit: commit},
		CorsOrigins: config.Server.CorsOrigins,
		StorageRoot: blobs.Root(),
		ExportRoot:  datasets.Root(),
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", config.Server.Port),
		Handler:     r,
		ReadTimeout: 5 * time.Minute,
	}

	go func() {
		// service connections
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	log.Info(fmt.Sprintf("Listening on %s", srv.Addr))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server Shutdown:", err)
	}

	log.Info("Waiting for background jobs...")
	engine.Close()

	log.Info("Server exiting")
	return nil
}
