package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-pay/custodia_pay/internal/auth"
	"github.com/custodia-pay/custodia_pay/internal/config"
	"github.com/custodia-pay/custodia_pay/internal/custody"
	"github.com/custodia-pay/custodia_pay/internal/events"
	"github.com/custodia-pay/custodia_pay/internal/gateway"
	"github.com/custodia-pay/custodia_pay/internal/identity"
	"github.com/custodia-pay/custodia_pay/internal/ledger"
	"github.com/custodia-pay/custodia_pay/internal/middleware"
	"github.com/custodia-pay/custodia_pay/internal/oracle"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	priceOracle, err := buildOracle(d.Cfg)
	if err != nil {
		return err
	}

	emitter := events.NewLogEmitter(d.Logger)
	custodySvc, err := custody.NewService(store, priceOracle,
		gateway.StaticTokenGateway{}, gateway.StaticNativeGateway{},
		emitter, d.Logger, d.Cfg.DepositCapUnits)
	if err != nil {
		return err
	}

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg, identityRepo)

	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)
	custodyHandler := custody.NewHandler(custodySvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.RequestIDFrom(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(d.Cfg, identityRepo)
	protected := api.Group("", jwtmw)
	RegisterCustodyRoutes(protected, custodyHandler)
	protected.Post("/auth/logout", authHandler.Logout)

	return nil
}

func buildOracle(cfg config.Config) (oracle.PriceOracle, error) {
	if cfg.OracleFeedURL != "" {
		return oracle.NewFeedOracle(cfg.OracleFeedURL)
	}
	return oracle.NewStaticOracle(cfg.OracleStaticRate)
}
