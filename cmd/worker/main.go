package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"colosseum/internal/app/service"
	"colosseum/internal/app/worker"
	"colosseum/internal/domain/repository"
	"colosseum/internal/platform/config"
	"colosseum/internal/platform/database"
	"colosseum/internal/platform/logging"
	"colosseum/internal/platform/queue"

	"github.com/rs/zerolog/log"
)

// Standalone rescore worker, for running rescores separately from the API
// server.
func main() {
	config.Load()
	logging.Init(config.AppConfig.LogLevel)

	database.Connect()
	defer database.Close()

	queue.ConnectRedis()
	defer queue.CloseRedis()

	userRepo := repository.NewPgUserRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)
	participationRepo := repository.NewPgParticipationRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	rescoreRepo := repository.NewPgRescoreRepository(database.DB)

	events := queue.NewPublisher(queue.RDB, config.AppConfig.EventChannelPrefix, config.AppConfig.RescoreQueueName)
	participationService := service.NewParticipationService(
		database.DB, contestRepo, participationRepo, userRepo, submissionRepo, events)

	rescoreWorker := worker.NewRescoreWorker(
		queue.RDB, config.AppConfig.RescoreQueueName, config.AppConfig.WorkerPollInterval,
		rescoreRepo, participationService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info().Msg("Shutting down worker")
		cancel()
	}()

	rescoreWorker.Start(ctx)
}
