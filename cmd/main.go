package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"libraryportal/internal/auth"
	"libraryportal/internal/handlers"
	"libraryportal/internal/repositories"
	"libraryportal/internal/services"
	"libraryportal/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	store, err := storage.New(dataDir)
	if err != nil {
		log.Fatalf("failed to open data dir: %v", err)
	}
	if err := store.Seed(); err != nil {
		log.Fatalf("failed to seed data: %v", err)
	}

	accountRepo := repositories.NewAccountRepository(store)
	bookRepo := repositories.NewBookRepository(store)
	loanRepo := repositories.NewLoanRepository(store)
	requestRepo := repositories.NewRequestRepository(store)

	libraryService := services.NewLibraryService(accountRepo, bookRepo, loanRepo, requestRepo)
	tokens := auth.NewTokenIssuer(secret)

	router := gin.Default()

	handlers.RegisterRoutes(router, libraryService, tokens)

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", serverAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
