package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal"
	"storefront/services"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf, err := config.GetConfig(*configPath)
	if err != nil {
		log.Fatalf("boot: %v", err)
	}

	syncLogs, err := internal.InitLogging(conf.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = syncLogs() }()

	logger := internal.NewLogger("internal", false, nil)
	logger.Info("using config file: " + *configPath)

	if _, err = conf.Gateway(); err != nil {
		logger.Error("payment gateway", err)
		return
	}

	var database services.Database
	var carts services.CartRepository = internal.NewMemoryCarts()
	mongo, err := internal.NewMongoClient(conf)
	if err != nil {
		logger.Error("mongo client", err)
		return
	}
	if mongo != nil {
		database = mongo
		carts = mongo
		logger.Info("mongo client initialized")
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongo.Close(ctx)
		}()
	}

	commerce := internal.NewCommerceClient(conf)
	commerce.SetLogger(internal.NewLogger("commerce", conf.IsDebug, database))

	payments := internal.NewPayments(conf)
	payments.SetLogger(internal.NewLogger("payments", conf.IsDebug, database))
	payments.SetDatabase(database)
	payments.SetCommerce(commerce)

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, database))
	server.SetPaymentsService(payments)
	server.SetCommerce(commerce)
	server.SetCartStore(internal.NewCartStore(carts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", err)
		}
	}()

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
	}

	// order updates already dispatched for accepted notifications
	payments.Wait()
}
