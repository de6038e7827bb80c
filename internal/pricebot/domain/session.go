// Package domain holds the entities shared by the dialogue engine, the fanout
// coordinator and quote intake.
package domain

import (
	"slices"
	"time"
)

// Step is the position of a conversation inside one of the dialogue flows.
type Step string

const (
	StepStart           Step = "start"
	StepUserType        Step = "user_type"
	StepGetCity         Step = "get_city"
	StepGetMaterial     Step = "get_material"
	StepGetBrand        Step = "get_brand"
	StepGetQuantity     Step = "get_quantity"
	StepConfirm         Step = "confirm"
	StepVendorName      Step = "vendor_name"
	StepVendorCity      Step = "vendor_city"
	StepVendorMaterials Step = "vendor_materials"
	StepVendorPhone     Step = "vendor_phone"
	StepVendorConfirm   Step = "vendor_confirm"
	StepSaleConfirm     Step = "sale_confirm"
)

var allSteps = []Step{
	StepStart, StepUserType,
	StepGetCity, StepGetMaterial, StepGetBrand, StepGetQuantity, StepConfirm,
	StepVendorName, StepVendorCity, StepVendorMaterials, StepVendorPhone, StepVendorConfirm,
	StepSaleConfirm,
}

// Steps lists every valid step.
func Steps() []Step { return slices.Clone(allSteps) }

// Valid reports whether s is one of the defined steps.
func (s Step) Valid() bool { return slices.Contains(allSteps, s) }

// UserType tells buyers and vendors apart.
type UserType string

const (
	UserBuyer  UserType = "buyer"
	UserVendor UserType = "vendor"
)

// Valid reports whether u is a known user type.
func (u UserType) Valid() bool { return u == UserBuyer || u == UserVendor }

// Materials handled by the platform.
const (
	MaterialCement = "cement"
	MaterialTMT    = "tmt"
)

// Session is the mutable state of one conversation.
type Session struct {
	ConversationID string
	Step           Step
	UserType       UserType

	City     string
	Material string
	Brand    string
	Quantity string

	VendorName  string
	VendorCity  string
	Materials   []string
	VendorPhone string

	PendingSale *Sale

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession returns a fresh session positioned at StepStart.
func NewSession(conversationID string, now time.Time) Session {
	return Session{
		ConversationID: conversationID,
		Step:           StepStart,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy so callers can mutate it outside the store lock.
func (s Session) Clone() Session {
	out := s
	out.Materials = slices.Clone(s.Materials)
	if s.PendingSale != nil {
		sale := *s.PendingSale
		out.PendingSale = &sale
	}
	return out
}

// VendorCityOrCity returns the vendor city, falling back to City which the
// extractor fills for both user types.
func (s Session) VendorCityOrCity() string {
	if s.VendorCity != "" {
		return s.VendorCity
	}
	return s.City
}
