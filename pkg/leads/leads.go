// Package leads builds CRM lead payloads from conversation state.
package leads

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidContactMethod is returned when the contact method is not one the CRM accepts.
var ErrInvalidContactMethod = errors.New("invalid contact method")

// Contact methods accepted by the CRM.
const (
	ContactCall     = "Llamada"
	ContactEmail    = "Correo electrónico"
	ContactWhatsapp = "Whatsapp"
)

var contactMethods = map[string]string{
	"LLAMADA":       ContactCall,
	"EMAIL":         ContactEmail,
	"WHATSAPP":      ContactWhatsapp,
	ContactCall:     ContactCall,
	ContactEmail:    ContactEmail,
	ContactWhatsapp: ContactWhatsapp,
}

// NormalizeContactMethod maps legacy and canonical contact values to the CRM value.
func NormalizeContactMethod(raw string) (string, error) {
	v, ok := contactMethods[strings.TrimSpace(raw)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidContactMethod, raw)
	}
	return v, nil
}

// Profile is the part of the conversation state a lead is built from.
type Profile struct {
	Name            string `mapstructure:"name"`
	LastName        string `mapstructure:"lastName"`
	Email           string `mapstructure:"email"`
	Phone           string `mapstructure:"phone"`
	StudyInterest   string `mapstructure:"selectedStudyInterest"`
	CourseSFID      string `mapstructure:"selectedCourseSfId"`
	CourseName      string `mapstructure:"selectedCourseName"`
	Year            string `mapstructure:"selectedYear"`
	Comment         string `mapstructure:"userComment"`
	AcceptedPrivacy string `mapstructure:"acceptedPrivacy"`
}

// ProfileFromState decodes a Profile. Numbers such as the year are converted to text.
func ProfileFromState(state domain.State) (Profile, error) {
	var p Profile
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(state.Values()); err != nil {
		return p, fmt.Errorf("failed to decode lead profile: %w", err)
	}
	return p, nil
}

// Payload is a Lead record in the CRM's field names.
type Payload struct {
	FirstName       string  `json:"FirstName"`
	LastName        string  `json:"LastName"`
	Email           string  `json:"Email"`
	EmailCopy       string  `json:"Email__c"`
	Phone           string  `json:"Phone"`
	Company         string  `json:"Company"`
	StudyOfInterest *string `json:"Study_of_interest__c"`
	Course          *string `json:"Curso__c"`
	YearOfInterest  string  `json:"A_o_de_inter_s__c"`
	ApplicationDate string  `json:"Application_date__c"`
	ContactBy       string  `json:"Contactar_por__c"`
	LeadSource      string  `json:"LeadSource"`
	Description     string  `json:"Description"`
	PrivacyAccepted bool    `json:"OK_Privacy_Policies__c"`
}

// Builder turns lead requests into payloads.
type Builder struct {
	company      string
	source       string
	privacyValue string
	now          func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithCompany sets the Company field.
func WithCompany(company string) Option {
	return func(b *Builder) {
		b.company = company
	}
}

// WithLeadSource sets the LeadSource field.
func WithLeadSource(source string) Option {
	return func(b *Builder) {
		b.source = source
	}
}

// WithPrivacyValue sets the acceptedPrivacy state value that counts as consent.
func WithPrivacyValue(v string) Option {
	return func(b *Builder) {
		b.privacyValue = v
	}
}

// WithClock replaces time.Now for the application date.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a payload builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		company:      "Particular",
		source:       "ChatWeb",
		privacyValue: "Aceptar",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the payload for req.
func (b *Builder) Build(req ports.LeadRequest) (Payload, error) {
	contact, err := NormalizeContactMethod(req.ContactMethod)
	if err != nil {
		return Payload{}, err
	}
	p, err := ProfileFromState(req.State)
	if err != nil {
		return Payload{}, err
	}

	desc := fmt.Sprintf("info id chatweb: %s - curso SFID: %s (%s) - año: %s",
		req.VisitorRef, p.CourseSFID, p.CourseName, p.Year)
	if p.Comment != "" {
		desc += "\n\nComentario del usuario:\n" + p.Comment
	}

	return Payload{
		FirstName:       p.Name,
		LastName:        p.LastName,
		Email:           p.Email,
		EmailCopy:       p.Email,
		Phone:           p.Phone,
		Company:         b.company,
		StudyOfInterest: optional(p.StudyInterest),
		Course:          optional(p.CourseSFID),
		YearOfInterest:  p.Year,
		ApplicationDate: b.now().Format(time.DateOnly),
		ContactBy:       contact,
		LeadSource:      b.source,
		Description:     desc,
		PrivacyAccepted: p.AcceptedPrivacy == b.privacyValue,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
