package model

import "time"

// Tier is a team's subscription tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierAgency  Tier = "agency"
)

// SubscriptionStatus is the billing state of a team's subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Team owns businesses and carries the subscription that drives automation.
type Team struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Tier               Tier               `json:"tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at"`
}
