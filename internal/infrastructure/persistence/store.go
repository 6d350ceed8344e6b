package persistence

import (
	"database/sql"

	"github.com/nexuscrm/workflow/internal/domain/ports"
)

// Store bundles the SQL repositories behind ports.Store. Every repository
// joins the transaction carried by the context it is called with.
type Store struct {
	*DefinitionRepository
	*InstanceRepository
	*TaskRepository
	*HistoryRepository
	*PermissionRepository
	*TransactionManager
}

var _ ports.Store = (*Store)(nil)

// NewStore creates a Store over db
func NewStore(db *sql.DB) *Store {
	return &Store{
		DefinitionRepository: NewDefinitionRepository(db),
		InstanceRepository:   NewInstanceRepository(db),
		TaskRepository:       NewTaskRepository(db),
		HistoryRepository:    NewHistoryRepository(db),
		PermissionRepository: NewPermissionRepository(db),
		TransactionManager:   NewTransactionManager(db),
	}
}
