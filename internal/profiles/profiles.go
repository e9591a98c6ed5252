// Package profiles defines the per-document-type extraction profiles: which
// fields the model should look for, how each value is typed and validated,
// and which layout thresholds suit the document class.
package profiles

import (
	"strings"

	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/layout"
)

// FieldType drives value cleaning and validation.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeDate     FieldType = "date"
	TypeCurrency FieldType = "currency"
	TypeNumber   FieldType = "number"
	TypeArea     FieldType = "area"
	TypeBoolean  FieldType = "boolean"
)

// Field describes one expected field of a document type.
type Field struct {
	Name        string
	Description string
	Type        FieldType
	Required    bool
	Pattern     string
	Min         *float64
	Max         *float64
}

// Profile is the full extraction profile of one document type.
type Profile struct {
	DocumentType string
	Fields       []Field
	Layout       layout.Config
}

// FieldNames returns the names of all expected fields in declaration order.
func (p Profile) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		names = append(names, f.Name)
	}
	return names
}

// FieldByName looks up a field spec by its name.
func (p Profile) FieldByName(name string) (Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func fptr(v float64) *float64 { return &v }

// LoanApplication is the default profile for credit applications.
func LoanApplication() Profile {
	return Profile{
		DocumentType: "loan_application",
		Layout:       layout.DefaultConfig(),
		Fields: []Field{
			{Name: "company_name", Description: "Legal name of the borrowing company", Type: TypeString, Required: true},
			{Name: "legal_form", Description: "Legal form of the company, e.g. GmbH or AG", Type: TypeString},
			{Name: "founding_date", Description: "Founding date of the company (DD.MM.YYYY)", Type: TypeDate},
			{Name: "business_address", Description: "Registered business address", Type: TypeString},
			{Name: "loan_amount", Description: "Requested loan amount including currency symbol", Type: TypeCurrency, Required: true, Min: fptr(0)},
			{Name: "purchase_price", Description: "Purchase price of the financed object", Type: TypeCurrency, Min: fptr(0)},
			{Name: "term", Description: "Loan term including its unit, e.g. 20 Years", Type: TypeString},
			{Name: "interest_rate", Description: "Nominal interest rate including percent sign", Type: TypeString},
			{Name: "property_area", Description: "Area of the financed property in square meters", Type: TypeArea, Min: fptr(0)},
			{Name: "vat_id", Description: "VAT identification number", Type: TypeString},
			{Name: "website", Description: "Company website", Type: TypeString},
		},
	}
}

var registry = map[string]func() Profile{
	"loan_application": LoanApplication,
}

// ByDocumentType resolves a profile by its document type identifier.
func ByDocumentType(documentType string) (Profile, error) {
	key := strings.ToLower(strings.TrimSpace(documentType))
	if key == "" {
		key = "loan_application"
	}
	build, ok := registry[key]
	if !ok {
		return Profile{}, common.NewAppError("PROFILE_ERROR",
			"unknown document type "+documentType, common.ErrInvalidInput)
	}
	return build(), nil
}

// DocumentTypes lists the registered document types.
func DocumentTypes() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
