package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowdeck/flowdeck/backend/go-services/handlers"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/access"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/database"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram/repository"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram/service"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/oidc"
	"github.com/flowdeck/flowdeck/backend/go-services/pkg/middleware"
)

// Standalone diagram API for local development. Uses Mongo when
// MONGODB_URI is set and falls back to the in-memory repository
// otherwise. Tokens are parsed without signature verification, so this
// binary must never face the public network.
func main() {
	port := os.Getenv("DIAGRAM_SERVICE_PORT")
	if port == "" {
		port = "5010"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	repo := repository.Repository(repository.NewMemoryRepo())
	grants := access.GrantStore(access.NewMemoryGrantStore())
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		client, err := database.ConnectMongo(context.Background(), uri, 10*time.Second)
		if err != nil {
			log.Printf("warning: cannot connect to MongoDB (%v), using memory-backed repo", err)
		} else {
			db := client.Database(os.Getenv("MONGODB_DATABASE"))
			repo = repository.NewMongoRepo(db)
			grants = access.NewMongoGrantStore(db.Collection("diagram_grants"))
		}
	}

	svc := service.NewService(repo, access.NewGate(grants), grants, service.Options{
		OwnerRecovery: os.Getenv("DIAGRAM_OWNER_RECOVERY") != "false",
	})

	log.Printf("warning: tokens are accepted without signature verification")
	auth := middleware.AuthMiddleware(oidc.NewInsecureVerifier())
	handlers.NewDiagramHandler(svc).Register(r, auth)

	log.Printf("diagram service listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
