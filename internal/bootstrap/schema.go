package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/nexuscrm/workflow/internal/infrastructure/database"
	"github.com/nexuscrm/workflow/internal/infrastructure/persistence"
)

// InitializeSchema creates the engine tables when missing.
func InitializeSchema(ctx context.Context, conn *database.Connection) error {
	log.Println("🔧 Initializing workflow schema...")
	if err := persistence.Migrate(ctx, conn.DB()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Println("✅ Workflow schema ready")
	return nil
}

// WipeSchema drops every engine table.
func WipeSchema(ctx context.Context, conn *database.Connection) error {
	log.Println("🧹 Dropping workflow schema...")
	if err := persistence.DropAll(ctx, conn.DB()); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	return nil
}
