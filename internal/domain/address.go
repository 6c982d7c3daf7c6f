package domain

import "strings"

// Address is an immutable shipping address compared by value.
type Address struct {
	street  string
	city    string
	country string
	zipCode string
}

func NewAddress(street, city, country, zipCode string) Address {
	return Address{street: street, city: city, country: country, zipCode: zipCode}
}

func (a Address) Street() string  { return a.street }
func (a Address) City() string    { return a.city }
func (a Address) Country() string { return a.country }
func (a Address) ZipCode() string { return a.zipCode }

// IsZero reports whether every field is blank.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.street) == "" &&
		strings.TrimSpace(a.city) == "" &&
		strings.TrimSpace(a.country) == "" &&
		strings.TrimSpace(a.zipCode) == ""
}

func (a Address) Equal(other Address) bool {
	return a == other
}
