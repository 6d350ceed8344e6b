package ports

import "context"

// RoleResolver supplies the roles currently held by a user.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, userID string) ([]string, error)
}

// TxRunner runs fn inside a transaction carried by ctx. Stores pick the
// transaction up from the context passed to them.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ConditionEvaluator evaluates decision connection conditions. Validate
// reports whether an expression compiles without running it.
type ConditionEvaluator interface {
	EvaluateCondition(expression string, vars map[string]interface{}) (bool, error)
	Validate(expression string) error
}
