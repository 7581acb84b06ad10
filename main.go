package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"study-progress-system/handlers"
	"study-progress-system/middleware"
	"study-progress-system/models"
	"study-progress-system/services"
	"study-progress-system/stores"
	"study-progress-system/utils"
	"study-progress-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 128 * 1024 * 1024, // headroom over the 100MB per-file resource cap
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Goal{},
		&models.ProgressEntry{},
		&models.StudySession{},
		&models.UserRewardState{},
		&models.Reward{},
		&models.Resource{},
		&models.Notification{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.EnsureUploadDir(); err != nil {
		log.Fatal("failed to ensure upload dir:", err)
	}

	goalStore := stores.NewGoalStore(db)
	rewardStateStore := stores.NewRewardStateStore(db)

	notificationService := services.NewNotificationService(db)
	progressEngine := services.NewProgressEngine(goalStore, rewardStateStore, notificationService)

	goalService := services.NewGoalService(goalStore, progressEngine)
	sessionService := services.NewSessionService(db, goalStore, rewardStateStore, progressEngine, notificationService)
	rewardService := services.NewRewardService(db, rewardStateStore)
	resourceService := services.NewResourceService(db)
	dashboardService := services.NewDashboardService(db, rewardStateStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	janitor := workers.NewSessionJanitor(db)
	go janitor.Run(ctx, time.Minute)

	sessionService.StartStreakScheduler()

	// ✅ Setup routes — all behind Gateway auth, user routes behind user context
	handlers.SetupGoalRoutes(app, goalService)
	handlers.SetupSessionRoutes(app, sessionService)
	handlers.SetupRewardRoutes(app, rewardService)
	handlers.SetupResourceRoutes(app, resourceService)
	handlers.SetupNotificationRoutes(app, notificationService)
	handlers.SetupDashboardRoutes(app, dashboardService)

	app.Static("/uploads", "./uploads")

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Session janitor running (every 1m)")
	log.Println("✅ Streak lapse scheduler running (hourly)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	if utils.R2Enabled() {
		log.Println("✅ R2 storage configured — resource uploads go to the bucket")
	} else {
		log.Println("⚠️  R2 not configured — resource uploads use local ./uploads storage")
	}
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
