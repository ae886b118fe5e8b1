package patient

import (
	"net/mail"
	"strings"
	"time"
)

const (
	maxNameLength       = 255
	maxNationalIDLength = 50
)

var (
	validGenders      = map[string]bool{"male": true, "female": true}
	validAddressTypes = map[string]bool{"current": true, "permanent": true}
	validBloodTypes   = map[string]bool{"A": true, "B": true, "AB": true, "O": true}
	validRhesus       = map[string]bool{"+": true, "-": true}
)

func validateCreate(req CreatePatientRequest, now time.Time) error {
	if err := validateName(req.Name); err != nil {
		return err
	}
	if err := validateNationalID(req.NationalID); err != nil {
		return err
	}
	if err := validateBirthDate(req.BirthDate, now); err != nil {
		return err
	}
	if err := validateGender(req.Gender); err != nil {
		return err
	}
	if err := validateAddresses(req.AddressInfo); err != nil {
		return err
	}
	if req.ContactInfo != nil {
		if err := validateContactInfo(*req.ContactInfo); err != nil {
			return err
		}
	}
	if req.FamilyInfo != nil {
		if err := validateFamilyInfo(*req.FamilyInfo); err != nil {
			return err
		}
	}
	if err := validateClinical(req.ClinicalInfo); err != nil {
		return err
	}
	return validatePayer(req.PayerInfo)
}

func validateUpdate(req UpdatePatientRequest, now time.Time) error {
	if req.Name != nil {
		if err := validateName(*req.Name); err != nil {
			return err
		}
	}
	if req.NationalID != nil {
		if err := validateNationalID(*req.NationalID); err != nil {
			return err
		}
	}
	if req.BirthDate != nil {
		if err := validateBirthDate(*req.BirthDate, now); err != nil {
			return err
		}
	}
	if req.Gender != nil {
		if err := validateGender(*req.Gender); err != nil {
			return err
		}
	}
	if req.DeceasedDate != nil && req.DeceasedDate.After(now) {
		return invalid("deceased date cannot be in the future")
	}
	if req.AddressInfo != nil {
		if err := validateAddresses(*req.AddressInfo); err != nil {
			return err
		}
	}
	if req.ContactInfo != nil {
		if err := validateContactInfo(*req.ContactInfo); err != nil {
			return err
		}
	}
	if req.FamilyInfo != nil {
		if err := validateFamilyInfo(*req.FamilyInfo); err != nil {
			return err
		}
	}
	if req.ClinicalInfo != nil {
		if err := validateClinical(*req.ClinicalInfo); err != nil {
			return err
		}
	}
	if req.PayerInfo != nil {
		return validatePayer(*req.PayerInfo)
	}
	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name is required")
	}
	if len(name) > maxNameLength {
		return invalid("name must be at most %d characters", maxNameLength)
	}
	return nil
}

func validateNationalID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("national id is required")
	}
	if len(id) > maxNationalIDLength {
		return invalid("national id must be at most %d characters", maxNationalIDLength)
	}
	return nil
}

// validateBirthDate requires YYYY-MM-DD no later than today.
func validateBirthDate(value string, now time.Time) error {
	if value == "" {
		return invalid("birth date is required")
	}
	dob, err := time.Parse(birthDateLayout, value)
	if err != nil {
		return invalid("birth date must be formatted as YYYY-MM-DD")
	}
	if dob.After(now) {
		return invalid("birth date cannot be in the future")
	}
	return nil
}

func validateGender(gender string) error {
	if !validGenders[gender] {
		return invalid("gender must be one of: male, female")
	}
	return nil
}

func validateAddresses(addresses AddressList) error {
	for i, a := range addresses {
		if !validAddressTypes[a.Type] {
			return invalid("address %d: type must be one of: current, permanent", i)
		}
		if strings.TrimSpace(a.Street) == "" {
			return invalid("address %d: street is required", i)
		}
		if strings.TrimSpace(a.CityID) == "" {
			return invalid("address %d: city_id is required", i)
		}
	}
	return nil
}

func validateContactInfo(c ContactInfo) error {
	for _, phone := range c.Phones {
		if strings.TrimSpace(phone) == "" {
			return invalid("phone numbers must not be empty")
		}
	}
	for _, email := range c.Emails {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return invalid("invalid email address: %q", email)
		}
	}
	return nil
}

func validateFamilyInfo(f FamilyInfo) error {
	for i, c := range f.EmergencyContacts {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Phone) == "" {
			return invalid("emergency contact %d: name and phone are required", i)
		}
	}
	return nil
}

func validateClinical(attrs Attributes) error {
	for key, value := range attrs {
		switch key {
		case ClinicalBloodType:
			if !validBloodTypes[value] {
				return invalid("blood_type must be one of: A, B, AB, O")
			}
		case ClinicalRhesus:
			if !validRhesus[value] {
				return invalid("rhesus must be + or -")
			}
		default:
			return invalid("unknown clinical_info field %q", key)
		}
	}
	return nil
}

func validatePayer(attrs Attributes) error {
	for key := range attrs {
		if key != PayerID && key != PayerPolicyNumber {
			return invalid("unknown payer_info field %q", key)
		}
	}
	return nil
}
