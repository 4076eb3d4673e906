package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan enumerates the billing plans a tenant can be on.
type SubscriptionPlan string

const (
	PlanFree       SubscriptionPlan = "FREE"
	PlanPro        SubscriptionPlan = "PRO"
	PlanEnterprise SubscriptionPlan = "ENTERPRISE"
)

// Tenant is an isolated customer organization. All data and rate budgets
// are partitioned by tenant id.
type Tenant struct {
	ID               uuid.UUID
	Name             string
	Slug             string
	SubscriptionPlan SubscriptionPlan
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
