package constants

// Engine table names. Every table lives in the configured database and is
// prefixed so the engine can share a schema with other services.
const (
	TablePrefix      = "wf_"
	TableDefinitions = "wf_definitions"
	TableInstances   = "wf_instances"
	TableTasks       = "wf_tasks"
	TableHistory     = "wf_history"
	TablePermissions = "wf_permissions"
	TableUserRoles   = "wf_user_roles"
)

// AllTables lists engine tables in creation order (parents first).
var AllTables = []string{
	TableDefinitions,
	TableInstances,
	TableTasks,
	TableHistory,
	TablePermissions,
	TableUserRoles,
}
