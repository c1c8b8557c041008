package models

import "time"

// LotFilter narrows lot listings. Empty fields match everything.
type LotFilter struct {
	SiteID     string
	BuildingID string
	Status     LotStatus
	IDs        []string
}

// SaleFilter narrows sale listings. Zero From/To leave the range open.
type SaleFilter struct {
	From          time.Time
	To            time.Time
	SiteID        string
	LotID         string
	ClientID      string
	PaymentStatus PaymentStatus
}

// ExpenseFilter narrows expense listings.
type ExpenseFilter struct {
	From     time.Time
	To       time.Time
	SiteID   string
	LotID    string
	Category string
}

// ProductionFilter narrows production listings.
type ProductionFilter struct {
	LotID string
	From  time.Time
	To    time.Time
}

// InRange reports whether t lies inside [from, to] where zero bounds are open.
func InRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
