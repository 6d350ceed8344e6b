package models

// UserSession identifies the caller of a service operation
type UserSession struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TenantID string `json:"tenantId"`
}
