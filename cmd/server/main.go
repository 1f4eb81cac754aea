package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"storefront-service/internal/config"
	httpctl "storefront-service/internal/controllers/http"
	"storefront-service/internal/infra"
	"storefront-service/internal/infra/daraja"
	mmysql "storefront-service/internal/infra/mysql"
	"storefront-service/internal/infra/rabbitmq"
	mysqlrepo "storefront-service/internal/repository/mysql"
	"storefront-service/internal/services"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config: load")
	}

	db, err := mmysql.NewMySQL(cfg.MySQL)
	if err != nil {
		log.WithError(err).Fatal("db: connect")
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1000)
	sqlDB.SetMaxIdleConns(200)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	cartRepo := mysqlrepo.NewCartRepository(db)
	orderRepo := mysqlrepo.NewOrderRepository(db)
	paymentRepo := mysqlrepo.NewPaymentRepository(db)

	catalogClient := infra.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		log.WithError(err).Fatal("failed to init publisher")
	}
	defer publisher.Close()

	gateway := daraja.New(daraja.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		Shortcode:      cfg.Mpesa.Shortcode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
		TokenTimeout:   cfg.Mpesa.TokenTimeout,
		PushTimeout:    cfg.Mpesa.PushTimeout,
	})

	cartService := services.NewCartService(cartRepo, catalogClient)
	orderService := services.NewOrderService(orderRepo, cartRepo, catalogClient, publisher)
	paymentService := services.NewPaymentService(paymentRepo, gateway, orderService, publisher)

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Host + ":" + cfg.Redis.Port,
		DB:           0,
		PoolSize:     200,
		MinIdleConns: 20,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	cartService.SetRedisClient(redisClient)

	if len(cfg.Catalog.WarmupIDs) > 0 {
		ctx := context.Background()
		go func() {
			time.Sleep(5 * time.Second)
			if err := cartService.WarmupProductCache(ctx, cfg.Catalog.WarmupIDs); err != nil {
				log.WithError(err).Warn("failed to warm up cache")
			}
		}()
	}

	handler := httpctl.NewHandler(cartService, orderService, paymentService)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	handler.RegisterRoutes(r)

	log.WithField("port", cfg.Port).Info("starting storefront service")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server run")
	}
}
