package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colosseum/internal/api"
	"colosseum/internal/app/service"
	"colosseum/internal/app/worker"
	"colosseum/internal/common/security"
	"colosseum/internal/domain/repository"
	"colosseum/internal/platform/config"
	"colosseum/internal/platform/database"
	"colosseum/internal/platform/logging"
	"colosseum/internal/platform/queue"

	"github.com/rs/zerolog/log"
)

func main() {
	// 1. Load Configuration
	config.Load()
	logging.Init(config.AppConfig.LogLevel)
	log.Info().Msg("Configuration loaded")

	// 2. Initialize JWT
	security.InitJWT()

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	log.Info().Msg("Database connected")

	// 4. Initialize Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()
	log.Info().Msg("Redis connected")

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)
	participationRepo := repository.NewPgParticipationRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	rescoreRepo := repository.NewPgRescoreRepository(database.DB)

	// 6. Initialize Services
	events := queue.NewPublisher(queue.RDB, config.AppConfig.EventChannelPrefix, config.AppConfig.RescoreQueueName)
	authService := service.NewAuthService(userRepo)
	contestService := service.NewContestService(database.DB, contestRepo, rescoreRepo, events)
	participationService := service.NewParticipationService(
		database.DB, contestRepo, participationRepo, userRepo, submissionRepo, events)
	rankingService := service.NewRankingService(contestRepo, participationRepo, userRepo)

	// 7. Initialize Rescore Worker (as a goroutine)
	rescoreWorker := worker.NewRescoreWorker(
		queue.RDB, config.AppConfig.RescoreQueueName, config.AppConfig.WorkerPollInterval,
		rescoreRepo, participationService)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go rescoreWorker.Start(workerCtx)

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(authService, contestService, participationService, rankingService)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", config.AppConfig.APIPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("port", config.AppConfig.APIPort).Msg("Could not listen")
		}
	}()

	<-stop // Wait for interrupt signal

	log.Info().Msg("Shutting down server")
	workerCancel() // Signal worker to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server and worker stopped gracefully")
}
