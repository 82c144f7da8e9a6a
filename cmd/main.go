package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logpkg "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/config"
	"github.com/campuslink/groupchat/internal/consumer"
	"github.com/campuslink/groupchat/internal/handlers"
	"github.com/campuslink/groupchat/internal/repositories"
	"github.com/campuslink/groupchat/internal/routers"
	"github.com/campuslink/groupchat/internal/services"
	"github.com/campuslink/groupchat/internal/storage"
	"github.com/campuslink/groupchat/internal/utils"
	"github.com/campuslink/groupchat/internal/ws"
	"github.com/campuslink/groupchat/middleware/jwt"
	"github.com/campuslink/groupchat/pkg/mq"
	"github.com/campuslink/groupchat/utils/ratelimit"
	"github.com/campuslink/groupchat/utils/snowflake"
)

func main() {
	cfg, err := config.LoadConfig("./config.toml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logpkg.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	pool.Start()
	defer pool.Stop()

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.Burst, cfg.RateLimit.QPS)

	dsn := storage.BuildDSN(cfg.Postgres.Host, cfg.Postgres.Port,
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName)
	db, err := storage.InitPostgres(dsn, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns)
	if err != nil {
		logger.Fatal("init postgres", zap.Error(err))
	}

	// Redis is optional: without it the broker runs single-node and
	// presence tracking is off.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = storage.InitRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password,
			cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns)
		if err != nil {
			logger.Fatal("init redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	userRepo := repositories.NewUserRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	messageRepo := repositories.NewMessageRepository(db)

	var presence ws.Presence
	if rdb != nil {
		presence = repositories.NewPresenceRepository(rdb, 90*time.Second)
	}

	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)

	authService := services.NewAuthService(userRepo, tokens)
	membership := services.NewMembershipService(groupRepo, pool, logger)

	ids, err := snowflake.NewGenerator(cfg.Server.NodeID)
	if err != nil {
		logger.Fatal("init id generator", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(membership, presence, rdb, logger)
	go hub.Run(ctx)

	// Kafka is optional too: on init failure the send path degrades to
	// writing the database directly and broadcasting in-process.
	var producer services.Producer
	var kafkaProducer *mq.KafkaProducer
	if cfg.Kafka.Enabled {
		kafkaProducer, err = mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Warn("kafka producer init failed, running in direct-write mode", zap.Error(err))
		} else {
			producer = kafkaProducer
			defer kafkaProducer.Close()
		}
	}

	messageService := services.NewMessageService(messageRepo, membership, ids, producer, hub, logger)

	if kafkaProducer != nil {
		msgConsumer := consumer.NewMessageConsumer(messageService, logger)
		if err := consumer.StartConsumer(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID,
			cfg.Kafka.Topic, msgConsumer, logger); err != nil {
			logger.Fatal("start consumer", zap.Error(err))
		}
	}

	authHandler := handlers.NewAuthHandler(authService, tokens, logger)
	groupHandler := handlers.NewGroupHandler(membership, logger)
	messageHandler := handlers.NewMessageHandler(messageService, logger)

	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()
	routers.SetupRoutes(r, tokens, limiter,
		authHandler, groupHandler, messageHandler,
		hub, messageService, logger)

	logger.Info("server starting", zap.Int("port", cfg.Server.Port))
	if err := r.Run(":" + strconv.Itoa(cfg.Server.Port)); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
