package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"dukapay-billing-api/config"
	"dukapay-billing-api/handlers"
	"dukapay-billing-api/middleware"
	"dukapay-billing-api/queue"
	"dukapay-billing-api/services/auth"
	"dukapay-billing-api/services/billing"
	"dukapay-billing-api/services/email"
	"dukapay-billing-api/services/payment"
	"dukapay-billing-api/services/payment/daraja"
	"dukapay-billing-api/worker"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		elapsed := time.Since(start)
		if elapsed > 500*time.Millisecond || wrapper.status >= 400 {
			log.Printf(
				"%s %s %s %d %v",
				r.Method,
				r.RequestURI,
				r.RemoteAddr,
				wrapper.status,
				elapsed,
			)
		}
	})
}

// noticeEnqueuer bridges the failure tracker's notices to the Redis queue.
func noticeEnqueuer(jobQueue *queue.Queue, contact string) func(billing.Notice) {
	jobTypes := map[billing.NoticeKind]queue.JobType{
		billing.NoticeGraceStarted:  queue.JobTypeGraceStarted,
		billing.NoticeRetryReminder: queue.JobTypeRetryReminder,
		billing.NoticeSuspended:     queue.JobTypeSuspension,
	}

	return func(notice billing.Notice) {
		if contact == "" {
			return
		}
		jobType, ok := jobTypes[notice.Kind]
		if !ok {
			log.Printf("Unknown notice kind %q, not enqueuing", notice.Kind)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := jobQueue.Enqueue(ctx, jobType, map[string]interface{}{
			"contact":          contact,
			"failed_attempts":  notice.FailedAttempts,
			"grace_period_end": notice.GracePeriodEnd.Format(time.RFC3339),
		})
		if err != nil {
			log.Printf("Failed to enqueue %s notice: %v", notice.Kind, err)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.Lmicroseconds | log.LUTC)

	numCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(numCPU)
	log.Printf("Server starting with %d CPUs available", numCPU)

	cfg := config.Load()
	log.Printf("Configuration loaded successfully")

	jobQueue, err := queue.NewQueue(cfg.Redis.URL, "billing_notices")
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer jobQueue.Close()
	log.Println("Successfully connected to Redis")

	darajaClient := daraja.NewClient(
		cfg.Daraja.ConsumerKey,
		cfg.Daraja.ConsumerSecret,
		cfg.Daraja.ShortCode,
		cfg.Daraja.Passkey,
		cfg.Daraja.CallbackURL,
		cfg.Daraja.Environment,
	)

	failureTracker := billing.NewFailureTracker(billing.FailureTrackerConfig{
		ResetOnSuccess: cfg.Billing.ResetOnSuccess,
	})

	paymentService := payment.NewService(darajaClient, failureTracker)
	paymentService.SetNoticeFunc(noticeEnqueuer(jobQueue, cfg.Billing.NoticeContact))

	emailService := email.NewSMTPService(cfg.SMTP)
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.SharedKey)

	workerConcurrency := cfg.Redis.WorkerConcurrency
	if workerConcurrency < 2 {
		workerConcurrency = 2
	} else if workerConcurrency > 8 {
		workerConcurrency = 8
	}

	noticeWorker := worker.NewWorker(jobQueue, emailService)
	noticeWorker.Start(workerConcurrency)
	defer noticeWorker.Stop()
	log.Printf("Started notification worker with %d threads", workerConcurrency)

	paymentHandler, err := handlers.NewPaymentHandler(paymentService)
	if err != nil {
		log.Fatalf("Failed to initialize payment handler: %v", err)
	}
	callbackHandler := handlers.NewCallbackHandler()
	authHandler := handlers.NewAuthHandler(jwtService)

	rateLimiter := middleware.NewRateLimiter(jobQueue.Client(), 10, time.Minute)

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	// Payment initiation requires a service token and is rate limited.
	paymentRouter := api.PathPrefix("/payments").Subrouter()
	paymentRouter.Use(middleware.AuthMiddleware(jwtService))
	paymentRouter.Use(rateLimiter.Middleware())
	paymentRouter.HandleFunc("/initiate", paymentHandler.InitiatePayment).Methods("POST", "OPTIONS")
	paymentRouter.HandleFunc("/failure-state", paymentHandler.FailureState).Methods("GET", "OPTIONS")

	// The gateway posts STK results here; it cannot carry our bearer token.
	api.HandleFunc("/daraja/callback", callbackHandler.HandleCallback).Methods("POST")

	api.HandleFunc("/auth/token", authHandler.IssueToken).Methods("POST", "OPTIONS")

	startTime := time.Now()

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		health := struct {
			Status    string `json:"status"`
			Time      string `json:"time"`
			Redis     string `json:"redis"`
			Uptime    string `json:"uptime"`
			GoVersion string `json:"go_version"`
		}{
			Status:    "ok",
			Time:      time.Now().Format(time.RFC3339),
			Redis:     "connected",
			Uptime:    fmt.Sprintf("%v", time.Since(startTime)),
			GoVersion: runtime.Version(),
		}

		redisCtx, redisCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer redisCancel()

		if err := jobQueue.Client().Ping(redisCtx).Err(); err != nil {
			health.Status = "degraded"
			health.Redis = "error"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	}).Methods("GET")

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	<-stop
	log.Println("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Stopping notification worker...")
	noticeWorker.Stop()

	// Give in-flight jobs a moment to finish.
	time.Sleep(2 * time.Second)

	log.Println("Closing Redis connections...")
	jobQueue.Close()

	log.Println("Server exited properly")
}
