// cmd/review-engine/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"poultry-workflow/internal/audit"
	"poultry-workflow/internal/common/aws"
	"poultry-workflow/internal/common/config"
	"poultry-workflow/internal/common/database"
	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/common/observability"
	"poultry-workflow/internal/issuer"
	"poultry-workflow/internal/models"
	"poultry-workflow/internal/notify"
	"poultry-workflow/internal/priority"
	"poultry-workflow/internal/queue"
	"poultry-workflow/internal/resolver"
	"poultry-workflow/internal/store"
	"poultry-workflow/internal/workflow"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting review engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("review-engine")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (only when the mirror is on) ---
	var mirror audit.Mirror = audit.NopMirror{}
	if cfg.Audit.SearchMirrorEnabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
		mirror = audit.NewSearchMirror(esClient.Client, cfg.Audit.Index, log)
	}

	// --- Reviewer resolver ---
	var res resolver.Resolver
	switch cfg.Resolver.Mode {
	case "keycloak":
		res = resolver.NewKeycloak(
			cfg.Resolver.Keycloak.URL,
			cfg.Resolver.Keycloak.Realm,
			cfg.Resolver.Keycloak.ClientID,
			cfg.Resolver.Keycloak.ClientSecret,
		)
	default:
		res = resolver.NewStatic(staticReviewers(cfg.Resolver.Static))
	}
	res = resolver.NewCached(res, redisClient.GetClient(),
		time.Duration(cfg.Resolver.CacheTTL)*time.Second, log)

	// --- Notification channels ---
	var channels []notify.Notifier
	if cfg.Notifications.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		channels = append(channels, notify.NewEmail(sesClient, cfg.Notifications.Email.FromEmail))
	}
	if cfg.Notifications.SMS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		channels = append(channels, notify.NewSMS(snsClient, cfg.Notifications.SMS.SenderID))
	}
	if len(channels) == 0 {
		channels = append(channels, notify.NewLog(log))
	}
	dispatcher := notify.NewDispatcher(log, channels...)

	// --- Policy, hot-reloadable via config watch ---
	var policyVal atomic.Value
	policyVal.Store(workflow.PolicyFromConfig(cfg))
	config.Watch(func(reloaded *config.Config) {
		policyVal.Store(workflow.PolicyFromConfig(reloaded))
		zapLog.Info("Workflow policy reloaded")
	})

	// --- Engine wiring ---
	db := store.NewPostgres(pg.GetDB())
	recorder := audit.NewRecorder(mirror, log)
	ranker := priority.NewRanker(priorityWeights(cfg.Priority))
	manager := queue.NewManager(db, ranker, recorder, log)
	ids := issuer.NewPostgresSequence(pg.GetDB(), "PPP")

	engine := workflow.NewEngine(db, manager, recorder, res, ids, dispatcher,
		func() workflow.Policy { return policyVal.Load().(workflow.Policy) },
		obs, log)

	// --- Changes-deadline sweep ---
	scheduler := cron.New(cron.WithSeconds())
	_, err = scheduler.AddFunc(cfg.Workflow.SweepSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		processed, err := engine.ExpireOverdueChanges(sweepCtx)
		if err != nil {
			log.WithError(err).Error("Changes-deadline sweep failed", nil)
			return
		}
		if processed > 0 {
			log.Info("Changes-deadline sweep finished", map[string]interface{}{
				"processed": processed,
			})
		}
	})
	if err != nil {
		zapLog.Fatal("invalid sweep schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// --- Metrics endpoint ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Metrics endpoint listening", zap.String("address", cfg.Metrics.Address))
		if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
			zapLog.Error("metrics server stopped", zap.Error(err))
		}
	}()

	zapLog.Info("Review engine started",
		zap.String("environment", cfg.App.Environment),
		zap.String("resolver", cfg.Resolver.Mode),
		zap.Bool("searchMirror", cfg.Audit.SearchMirrorEnabled),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	zapLog.Info("Shutting down review engine...")
}

func staticReviewers(table map[string]config.StaticReviewer) map[string]*models.Reviewer {
	out := make(map[string]*models.Reviewer, len(table))
	for id, entry := range table {
		out[id] = &models.Reviewer{
			ID:   id,
			Role: models.Role(entry.Role),
			Jurisdiction: models.Jurisdiction{
				Region:       entry.Region,
				District:     entry.District,
				Constituency: entry.Constituency,
			},
		}
	}
	return out
}

func priorityWeights(cfg config.PriorityConfig) priority.Weights {
	return priority.Weights{
		SponsoredTrackBonus: cfg.SponsoredTrackBonus,
		SponsoredTracks:     cfg.SponsoredTracks,
		VerificationBonus:   cfg.VerificationBonus,
		WaitBonusPerDay:     cfg.WaitBonusPerDay,
		WaitBonusCap:        cfg.WaitBonusCap,
		UrgencyWindow:       time.Duration(cfg.UrgencyWindowHours) * time.Hour,
		UrgencyBonus:        cfg.UrgencyBonus,
		BreachBonus:         cfg.BreachBonus,
	}
}
