// Package domain defines the entities persisted by the import engine:
// the shared lookup tables, the process/goal/indicator hierarchy and the
// port concession/service/tracking hierarchy.
//
// Identity is always the natural key (process number, concession object
// within a zone, service name within a concession); the surrogate ID is
// assigned by the store on first creation and never carried in workbooks.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LookupKind identifies one of the small reference tables resolved by
// name during import.
type LookupKind string

const (
	LookupPortZone    LookupKind = "port_zone"
	LookupServiceType LookupKind = "service_type"
	LookupRiskType    LookupKind = "risk_type"
	LookupSituation   LookupKind = "situation"
)

// Lookup is a reference-table row. Extra carries kind-specific data
// (the UF state code for port zones); empty otherwise.
type Lookup struct {
	ID    int64
	Kind  LookupKind
	Name  string
	Extra string
}

// ConcessionType enumerates the contract types accepted for a concession.
type ConcessionType string

const (
	TypeConcession    ConcessionType = "Concessão"
	TypeLease         ConcessionType = "Arrendamento"
	TypeAuthorization ConcessionType = "Autorização"
)

// ConcessionTypes lists the accepted values in display order.
var ConcessionTypes = []ConcessionType{TypeConcession, TypeLease, TypeAuthorization}

// Process is the top-level entity of the process hierarchy,
// uniquely identified by its process number.
type Process struct {
	ID           int64
	Number       string
	ProtocolDate *time.Time
	License      string
	SituationID  *int64
}

// Goal is a per-year milestone of a process. Key: (ProcessID, Year).
type Goal struct {
	ID        int64
	ProcessID int64
	Year      int
}

// Indicator holds the planned/executed figures of a goal for one
// intervention type. Key: (GoalID, InterventionType).
type Indicator struct {
	ID                int64
	GoalID            int64
	InterventionType  string
	FinancialPlanned  decimal.Decimal
	FinancialExecuted decimal.Decimal
	KmPlanned         decimal.Decimal
	KmExecuted        decimal.Decimal
	ExtensionKm       decimal.Decimal
}

// Concession is the top-level entity of the port hierarchy.
// Key: (PortZoneID, ConcessionObject, Type).
type Concession struct {
	ID               int64
	PortZoneID       int64
	ConcessionObject string
	Type             ConcessionType
	CapexTotal       decimal.Decimal
	SigningDate      *time.Time
	Description      string
	CoordE           *decimal.Decimal
	CoordS           *decimal.Decimal
	UTMZone          *int
}

// Service is a contracted service of a concession. Key: (ConcessionID, Name).
type Service struct {
	ID             int64
	ConcessionID   int64
	ServiceTypeID  int64
	Phase          string
	Name           string
	Description    string
	StartLeadYears *int
	StartDate      *time.Time
	EndLeadYears   *int
	EndDate        *time.Time
	LeadSource     string
	CapexPercent   decimal.Decimal
	CapexAmount    decimal.Decimal
	PercentSource  string
}

// Risk is an association on a tracking record, resolved through the
// risk-type lookup; it has no independent identity.
type Risk struct {
	RiskTypeID  int64
	Description string
}

// TrackingRecord is a progress snapshot of a service.
// Key: (ServiceID, UpdateDate, Responsible).
type TrackingRecord struct {
	ID              int64
	ServiceID       int64
	PercentExecuted decimal.Decimal
	CapexAdjusted   decimal.Decimal
	ValueExecuted   decimal.Decimal
	UpdateDate      *time.Time
	Responsible     string
	Role            string
	Department      string
	Risks           []Risk
}
