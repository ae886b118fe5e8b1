package patient

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusMerged  Status = "merged"
	StatusDeleted Status = "deleted"
)

// SystemActor is used when a request carries no audit identity.
const SystemActor = "system"

// Actor identifies who performed a mutation and from which workstation.
type Actor struct {
	UserID        string
	WorkstationID string
}

// Normalize fills blank fields with SystemActor.
func (a Actor) Normalize() Actor {
	if a.UserID == "" {
		a.UserID = SystemActor
	}
	if a.WorkstationID == "" {
		a.WorkstationID = SystemActor
	}
	return a
}

type Address struct {
	Type       string `json:"type"` // current | permanent
	Street     string `json:"street"`
	CityID     string `json:"city_id"`
	PostalCode string `json:"postal_code,omitempty"`
}

type AddressList []Address

type ContactInfo struct {
	Phones []string `json:"phones"`
	Emails []string `json:"emails"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

type FamilyInfo struct {
	FatherName        string             `json:"father_name,omitempty"`
	MotherName        string             `json:"mother_name,omitempty"`
	EmergencyContacts []EmergencyContact `json:"emergency_contacts"`
}

// Attributes is a sparse key/value sub-record (clinical_info, payer_info).
type Attributes map[string]string

// Known clinical and payer attribute keys.
const (
	ClinicalBloodType = "blood_type"
	ClinicalRhesus    = "rhesus"
	PayerID           = "payer_id"
	PayerPolicyNumber = "policy_number"
)

type AuditInfo struct {
	CreatedBy              string     `json:"created_by_user_id"`
	CreatedWorkstation     string     `json:"created_workstation_id"`
	CreatedAt              *time.Time `json:"created_at,omitempty"`
	LastUpdatedBy          string     `json:"last_updated_by_user_id"`
	LastUpdatedWorkstation string     `json:"last_updated_workstation_id"`
	LastUpdatedAt          *time.Time `json:"last_updated_at,omitempty"`
}

// Stamp returns a copy with the last-updated triple set to actor and now.
func (a AuditInfo) Stamp(actor Actor, now time.Time) AuditInfo {
	a.LastUpdatedBy = actor.UserID
	a.LastUpdatedWorkstation = actor.WorkstationID
	a.LastUpdatedAt = &now
	return a
}

// NewAuditInfo returns the audit block of a freshly created record.
func NewAuditInfo(actor Actor, now time.Time) AuditInfo {
	return AuditInfo{
		CreatedBy:              actor.UserID,
		CreatedWorkstation:     actor.WorkstationID,
		CreatedAt:              &now,
		LastUpdatedBy:          actor.UserID,
		LastUpdatedWorkstation: actor.WorkstationID,
		LastUpdatedAt:          &now,
	}
}

// Patient is the identity and demographic aggregate.
type Patient struct {
	ID           string      `json:"id"`
	MRN          string      `json:"mrn"`
	NationalID   string      `json:"national_id"`
	Name         string      `json:"name"`
	BirthDate    string      `json:"birth_date"`
	Gender       string      `json:"gender"`
	PhotoURL     *string     `json:"photo_url,omitempty"`
	IsDeceased   bool        `json:"is_deceased"`
	DeceasedDate *time.Time  `json:"deceased_date,omitempty"`
	Status       Status      `json:"status"`
	MergedToID   *string     `json:"merged_to_id,omitempty"`
	AddressInfo  AddressList `json:"address_info"`
	ContactInfo  ContactInfo `json:"contact_info"`
	FamilyInfo   FamilyInfo  `json:"family_info"`
	ClinicalInfo Attributes  `json:"clinical_info"`
	PayerInfo    Attributes  `json:"payer_info"`
	AuditInfo    AuditInfo   `json:"audit_info"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// CreatePatientRequest represents the request to create a new patient
type CreatePatientRequest struct {
	Name         string       `json:"name"`
	BirthDate    string       `json:"birth_date"` // Format: YYYY-MM-DD
	Gender       string       `json:"gender"`
	NationalID   string       `json:"national_id"`
	AddressInfo  AddressList  `json:"address_info,omitempty"`
	ContactInfo  *ContactInfo `json:"contact_info,omitempty"`
	FamilyInfo   *FamilyInfo  `json:"family_info,omitempty"`
	ClinicalInfo Attributes   `json:"clinical_info,omitempty"`
	PayerInfo    Attributes   `json:"payer_info,omitempty"`
}

// UpdatePatientRequest represents a partial update. Status, MRN and the
// merge link are not updatable.
type UpdatePatientRequest struct {
	Name         *string      `json:"name,omitempty"`
	BirthDate    *string      `json:"birth_date,omitempty"`
	Gender       *string      `json:"gender,omitempty"`
	NationalID   *string      `json:"national_id,omitempty"`
	PhotoURL     *string      `json:"photo_url,omitempty"`
	IsDeceased   *bool        `json:"is_deceased,omitempty"`
	DeceasedDate *time.Time   `json:"deceased_date,omitempty"`
	AddressInfo  *AddressList `json:"address_info,omitempty"`
	ContactInfo  *ContactInfo `json:"contact_info,omitempty"`
	FamilyInfo   *FamilyInfo  `json:"family_info,omitempty"`
	ClinicalInfo *Attributes  `json:"clinical_info,omitempty"`
	PayerInfo    *Attributes  `json:"payer_info,omitempty"`
}

// IsEmpty reports whether no field is set.
func (r UpdatePatientRequest) IsEmpty() bool {
	return r.Name == nil && r.BirthDate == nil && r.Gender == nil && r.NationalID == nil &&
		r.PhotoURL == nil && r.IsDeceased == nil && r.DeceasedDate == nil &&
		r.AddressInfo == nil && r.ContactInfo == nil && r.FamilyInfo == nil &&
		r.ClinicalInfo == nil && r.PayerInfo == nil
}

type MergePatientsRequest struct {
	TargetID string `json:"targetId"`
	SourceID string `json:"sourceId"`
}

type MergeResult struct {
	Success  bool   `json:"success"`
	TargetID string `json:"targetId"`
	SourceID string `json:"sourceId"`
}

// SearchParams are the optional patient search filters.
type SearchParams struct {
	Name       string `json:"name,omitempty"`
	MRN        string `json:"mrn,omitempty"`
	NationalID string `json:"national_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Limit      int    `json:"-"`
	Offset     int    `json:"-"`
}

// IsEmpty reports whether no filter is supplied.
func (p SearchParams) IsEmpty() bool {
	return p.Name == "" && p.MRN == "" && p.NationalID == "" && p.Phone == ""
}

// UpdatePatch is the typed column set written by a regular update.
type UpdatePatch struct {
	Request   UpdatePatientRequest
	AuditInfo AuditInfo
}

// MergeTargetPatch is everything a merge may change on the surviving record.
type MergeTargetPatch struct {
	AddressInfo  AddressList
	ContactInfo  ContactInfo
	FamilyInfo   FamilyInfo
	ClinicalInfo Attributes
	PayerInfo    Attributes
	AuditInfo    AuditInfo
}

// MergeSourcePatch is everything a merge may change on the retired record.
type MergeSourcePatch struct {
	MergedToID string
	AuditInfo  AuditInfo
}

// Status is always merged for a source patch.
func (MergeSourcePatch) Status() Status {
	return StatusMerged
}

// JSONB column encoding. lib/pq binds the text form, which Postgres parses
// into the jsonb column type.

func jsonbValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonbScan(src interface{}, dst interface{}) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(data, dst)
	case string:
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		l = AddressList{}
	}
	return jsonbValue([]Address(l))
}

func (l *AddressList) Scan(src interface{}) error { return jsonbScan(src, (*[]Address)(l)) }

func (c ContactInfo) Value() (driver.Value, error) {
	if c.Phones == nil {
		c.Phones = []string{}
	}
	if c.Emails == nil {
		c.Emails = []string{}
	}
	type plain ContactInfo
	return jsonbValue(plain(c))
}

func (c *ContactInfo) Scan(src interface{}) error {
	type plain ContactInfo
	return jsonbScan(src, (*plain)(c))
}

func (f FamilyInfo) Value() (driver.Value, error) {
	if f.EmergencyContacts == nil {
		f.EmergencyContacts = []EmergencyContact{}
	}
	type plain FamilyInfo
	return jsonbValue(plain(f))
}

func (f *FamilyInfo) Scan(src interface{}) error {
	type plain FamilyInfo
	return jsonbScan(src, (*plain)(f))
}

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		a = Attributes{}
	}
	return jsonbValue(map[string]string(a))
}

func (a *Attributes) Scan(src interface{}) error { return jsonbScan(src, (*map[string]string)(a)) }

func (a AuditInfo) Value() (driver.Value, error) {
	type plain AuditInfo
	return jsonbValue(plain(a))
}

func (a *AuditInfo) Scan(src interface{}) error {
	type plain AuditInfo
	return jsonbScan(src, (*plain)(a))
}
