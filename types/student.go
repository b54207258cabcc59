package types

import "time"

// Student represents a registered student record.
// The matriculation number doubles as the login username.
type Student struct {
	// Matricula is the matriculation number, the immutable primary key.
	Matricula string `json:"matricula" db:"matricula"`

	// FirstName is the student's given name, used for display.
	FirstName string `json:"first_name" db:"first_name"`

	// LastNamePaternal and LastNameMaternal are the two family names.
	LastNamePaternal string `json:"last_name_paternal" db:"last_name_paternal"`
	LastNameMaternal string `json:"last_name_maternal" db:"last_name_maternal"`

	// Sex as self-reported on the registration form.
	Sex string `json:"sex,omitempty" db:"sex"`

	// Postal address fields.
	Street       string `json:"street,omitempty" db:"street"`
	StreetNumber string `json:"street_number,omitempty" db:"street_number"`
	Neighborhood string `json:"neighborhood,omitempty" db:"neighborhood"`
	PostalCode   string `json:"postal_code,omitempty" db:"postal_code"`

	// Contact details. Email is the lookup key for identity-provider login.
	Phone     string `json:"phone,omitempty" db:"phone"`
	Email     string `json:"email" db:"email"`
	Facebook  string `json:"facebook,omitempty" db:"facebook"`
	Instagram string `json:"instagram,omitempty" db:"instagram"`

	// BloodType and the emergency contact, kept for campus services.
	BloodType             string `json:"blood_type,omitempty" db:"blood_type"`
	EmergencyContactName  string `json:"emergency_contact_name,omitempty" db:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty" db:"emergency_contact_phone"`

	// PasswordHash stores the bcrypt hash of the student's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the record was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the record.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the student's full name as shown in listings.
func (s Student) DisplayName() string {
	name := s.FirstName
	if s.LastNamePaternal != "" {
		name += " " + s.LastNamePaternal
	}
	if s.LastNameMaternal != "" {
		name += " " + s.LastNameMaternal
	}
	return name
}
