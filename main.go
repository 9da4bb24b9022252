package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lch-dev/board2/config"
	"github.com/lch-dev/board2/models"
	"github.com/lch-dev/board2/routes"
	"github.com/lch-dev/board2/session"
	"github.com/lch-dev/board2/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Session{},
		&models.Post{},
		&models.Comment{},
		&models.Attachment{},
		&models.SearchHistory{},
	)

	if err := utils.EnsureUploadDir(); err != nil {
		utils.Sugar.Fatalf("failed to prepare upload dir: %v", err)
	}

	store := session.New(cfg, db)
	session.StartSweeper(db, time.Duration(cfg.SessionTTLHours)*time.Hour, time.Hour)

	r := routes.SetupRouter(db, store)

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		utils.Sugar.Infof("Starting server on port %s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Sugar.Fatalf("server stopped with error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Sugar.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.Sugar.Errorf("forced shutdown: %v", err)
	}
	utils.Sugar.Info("Server exited")
}
