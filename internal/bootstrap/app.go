package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/nexuscrm/workflow/internal/application/services"
	"github.com/nexuscrm/workflow/internal/config"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/internal/infrastructure/database"
	"github.com/nexuscrm/workflow/internal/infrastructure/identity"
	"github.com/nexuscrm/workflow/internal/infrastructure/memory"
	"github.com/nexuscrm/workflow/internal/infrastructure/persistence"
)

// RoleAdmin changes role membership in the backing role store
type RoleAdmin interface {
	AssignRole(ctx context.Context, userID, role string) error
	RevokeRole(ctx context.Context, userID, role string) error
}

// App is a fully wired engine: store, role resolution and services.
type App struct {
	Config   *config.Config
	Store    ports.Store
	Roles    ports.RoleResolver
	Services *services.ServiceManager

	// Set only for the mysql driver
	Conn      *database.Connection
	RoleAdmin RoleAdmin

	// Set only when redis.addr is configured
	RoleCache *identity.CachedRoleResolver
	redis     *redis.Client
}

// New opens the configured store and wires the services over it. The
// mysql driver also runs the schema migration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	switch cfg.Store.Driver {
	case config.StoreMySQL:
		conn, err := database.Open(ctx, cfg.Database())
		if err != nil {
			return nil, err
		}
		if err := InitializeSchema(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		roles := persistence.NewRoleRepository(conn.DB())
		app.Conn = conn
		app.Store = persistence.NewStore(conn.DB())
		app.Roles = roles
		app.RoleAdmin = roles
	case config.StoreMemory:
		store := memory.NewStore()
		app.Store = store
		app.Roles = store
		log.Println("🧪 Using in-memory store; state is lost on exit")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.RoleCache = identity.NewCachedRoleResolver(app.redis, app.Roles, cfg.Redis.RoleTTL)
		if err := app.RoleCache.Ping(ctx); err != nil {
			log.Printf("⚠️ Redis unavailable at %s, roles resolve uncached until it recovers: %v", cfg.Redis.Addr, err)
		} else {
			log.Printf("✅ Role cache connected (%s)", cfg.Redis.Addr)
		}
		app.Roles = app.RoleCache
	}

	app.Services = services.NewServiceManager(app.Store, app.Roles, services.SweepConfig{
		Concurrency:   cfg.Sweep.Concurrency,
		RatePerSecond: cfg.Sweep.RatePerSecond,
	})
	log.Println("🔧 Service manager initialized")
	return app, nil
}

// AssignRole grants role to userID and drops the user's cached roles.
func (a *App) AssignRole(ctx context.Context, userID, role string) error {
	if a.RoleAdmin == nil {
		return fmt.Errorf("role management requires the %s store", config.StoreMySQL)
	}
	if err := a.RoleAdmin.AssignRole(ctx, userID, role); err != nil {
		return err
	}
	return a.invalidateRoles(ctx, userID)
}

// RevokeRole removes role from userID and drops the user's cached roles.
func (a *App) RevokeRole(ctx context.Context, userID, role string) error {
	if a.RoleAdmin == nil {
		return fmt.Errorf("role management requires the %s store", config.StoreMySQL)
	}
	if err := a.RoleAdmin.RevokeRole(ctx, userID, role); err != nil {
		return err
	}
	return a.invalidateRoles(ctx, userID)
}

func (a *App) invalidateRoles(ctx context.Context, userID string) error {
	if a.RoleCache == nil {
		return nil
	}
	if err := a.RoleCache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("role changed but cache invalidation failed: %w", err)
	}
	return nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("⚠️ Failed to close redis: %v", err)
		}
	}
	if a.Conn != nil {
		if err := a.Conn.Close(); err != nil {
			log.Printf("⚠️ Failed to close database: %v", err)
		}
	}
}
