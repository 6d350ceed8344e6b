package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/nexuscrm/workflow/pkg/constants"
)

// tableDefinition is the physical layout of one engine table
type tableDefinition struct {
	Name    string
	Columns []string
	Indices []string
}

var engineTables = []tableDefinition{
	{
		Name: constants.TableDefinitions,
		Columns: []string{
			"`id` VARCHAR(36) NOT NULL PRIMARY KEY",
			"`tenant_id` VARCHAR(64) NOT NULL",
			"`name` VARCHAR(255) NOT NULL",
			"`description` TEXT",
			"`version` INT NOT NULL DEFAULT 1",
			"`graph` JSON NOT NULL",
			"`category` VARCHAR(128) NOT NULL DEFAULT ''",
			"`tags` JSON",
			"`is_active` BOOLEAN NOT NULL DEFAULT FALSE",
			"`created_by` VARCHAR(64) NOT NULL",
			"`created_at` DATETIME(6) NOT NULL",
			"`updated_at` DATETIME(6) NOT NULL",
		},
		Indices: []string{
			"KEY `idx_wf_definitions_tenant` (`tenant_id`, `is_active`)",
		},
	},
	{
		Name: constants.TableInstances,
		Columns: []string{
			"`id` VARCHAR(36) NOT NULL PRIMARY KEY",
			"`tenant_id` VARCHAR(64) NOT NULL",
			"`definition_id` VARCHAR(36) NOT NULL",
			"`definition_version` INT NOT NULL",
			"`document_id` VARCHAR(255) NOT NULL DEFAULT ''",
			"`current_state` VARCHAR(255) NOT NULL",
			"`context` JSON",
			"`status` VARCHAR(32) NOT NULL",
			"`started_by` VARCHAR(64) NOT NULL",
			"`assigned_to` VARCHAR(64) NOT NULL DEFAULT ''",
			"`priority` VARCHAR(16) NOT NULL",
			"`due_date` DATETIME(6) NULL",
			"`started_at` DATETIME(6) NOT NULL",
			"`completed_at` DATETIME(6) NULL",
			"`failure_reason` VARCHAR(64) NOT NULL DEFAULT ''",
			"`graph` JSON NOT NULL",
			"`revision` BIGINT NOT NULL DEFAULT 0",
		},
		Indices: []string{
			"KEY `idx_wf_instances_definition` (`definition_id`, `status`)",
			"KEY `idx_wf_instances_status` (`status`, `started_at`)",
		},
	},
	{
		Name: constants.TableTasks,
		Columns: []string{
			"`id` VARCHAR(36) NOT NULL PRIMARY KEY",
			"`tenant_id` VARCHAR(64) NOT NULL",
			"`instance_id` VARCHAR(36) NOT NULL",
			"`node_id` VARCHAR(255) NOT NULL",
			"`name` VARCHAR(255) NOT NULL DEFAULT ''",
			"`description` TEXT",
			"`task_type` VARCHAR(64) NOT NULL DEFAULT ''",
			"`assigned_to` VARCHAR(64) NOT NULL DEFAULT ''",
			"`status` VARCHAR(32) NOT NULL",
			"`priority` VARCHAR(16) NOT NULL",
			"`due_date` DATETIME(6) NULL",
			"`created_at` DATETIME(6) NOT NULL",
			"`completed_at` DATETIME(6) NULL",
			"`completed_by` VARCHAR(64) NOT NULL DEFAULT ''",
			"`action` VARCHAR(128) NOT NULL DEFAULT ''",
			"`comments` TEXT",
			"`data` JSON",
		},
		Indices: []string{
			"UNIQUE KEY `uq_wf_tasks_instance_node` (`instance_id`, `node_id`)",
			"KEY `idx_wf_tasks_assignee` (`tenant_id`, `assigned_to`, `status`)",
		},
	},
	{
		Name: constants.TableHistory,
		Columns: []string{
			"`seq` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
			"`id` VARCHAR(36) NOT NULL",
			"`instance_id` VARCHAR(36) NOT NULL",
			"`action` VARCHAR(128) NOT NULL",
			"`from_state` VARCHAR(255) NOT NULL DEFAULT ''",
			"`to_state` VARCHAR(255) NOT NULL DEFAULT ''",
			"`actor_id` VARCHAR(64) NOT NULL",
			"`timestamp` DATETIME(6) NOT NULL",
			"`comments` TEXT",
			"`action_data` JSON",
		},
		Indices: []string{
			"UNIQUE KEY `uq_wf_history_id` (`id`)",
			"KEY `idx_wf_history_instance` (`instance_id`, `seq`)",
		},
	},
	{
		Name: constants.TablePermissions,
		Columns: []string{
			"`id` VARCHAR(36) NOT NULL PRIMARY KEY",
			"`definition_id` VARCHAR(36) NOT NULL",
			"`user_id` VARCHAR(64) NOT NULL DEFAULT ''",
			"`role_name` VARCHAR(64) NOT NULL DEFAULT ''",
			"`permission_type` VARCHAR(16) NOT NULL",
			"`expires_at` DATETIME(6) NULL",
			"`granted_by` VARCHAR(64) NOT NULL",
			"`granted_at` DATETIME(6) NOT NULL",
			"`is_active` BOOLEAN NOT NULL DEFAULT TRUE",
			"`actions` JSON",
			"`conditions` JSON",
		},
		Indices: []string{
			"KEY `idx_wf_permissions_definition` (`definition_id`, `is_active`)",
		},
	},
	{
		Name: constants.TableUserRoles,
		Columns: []string{
			"`user_id` VARCHAR(64) NOT NULL",
			"`role_name` VARCHAR(64) NOT NULL",
		},
		Indices: []string{
			"PRIMARY KEY (`user_id`, `role_name`)",
		},
	},
}

// createTableDDL renders a CREATE TABLE IF NOT EXISTS statement.
func createTableDDL(def tableDefinition) string {
	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n", def.Name))

	lines := append(append([]string{}, def.Columns...), def.Indices...)
	for i, line := range lines {
		ddl.WriteString("  ")
		ddl.WriteString(line)
		if i < len(lines)-1 {
			ddl.WriteString(",")
		}
		ddl.WriteString("\n")
	}
	ddl.WriteString(") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
	return ddl.String()
}

// Migrate creates every engine table that does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, def := range engineTables {
		log.Printf("📐 Ensuring table: %s", def.Name)
		if _, err := db.ExecContext(ctx, createTableDDL(def)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", def.Name, err)
		}
	}
	return nil
}

// DropAll removes every engine table, children first.
func DropAll(ctx context.Context, db *sql.DB) error {
	for i := len(constants.AllTables) - 1; i >= 0; i-- {
		table := constants.AllTables[i]
		log.Printf("🗑️ Dropping table: %s", table)
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
