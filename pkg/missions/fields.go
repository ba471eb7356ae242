package missions

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownField  = errors.New("unknown mission field")
	ErrNoOpenMission = errors.New("no mission is open")
)

// Patchable mission fields, by wire name. Identity and server-assigned
// fields (id, owner, ref, createdAt) are deliberately absent.
const (
	FieldDate            = "date"
	FieldTitle           = "title"
	FieldClient          = "client"
	FieldLocation        = "location"
	FieldType            = "type"
	FieldCategory        = "category"
	FieldScenario        = "scenario"
	FieldFlightNotes     = "flightNotes"
	FieldTechNotes       = "techNotes"
	FieldChecklist       = "checklist"
	FieldDocuments       = "documents"
	FieldLogs            = "logs"
	FieldSignaturePilote = "signaturePilote"
	FieldSignatureClient = "signatureClient"
)

// setField sets the named patchable field on m. The value must carry the
// field's wire type.
func setField(m *Mission, field string, value any) error {
	switch field {
	case FieldDate:
		return setString(&m.Date, field, value)
	case FieldTitle:
		return setString(&m.Title, field, value)
	case FieldClient:
		return setString(&m.Client, field, value)
	case FieldLocation:
		return setString(&m.Location, field, value)
	case FieldType:
		return setString(&m.Type, field, value)
	case FieldCategory:
		return setString(&m.Category, field, value)
	case FieldScenario:
		return setString(&m.Scenario, field, value)
	case FieldFlightNotes:
		return setString(&m.FlightNotes, field, value)
	case FieldTechNotes:
		return setString(&m.TechNotes, field, value)
	case FieldChecklist:
		v, ok := value.(map[string]bool)
		if !ok {
			return typeError(field, value)
		}
		m.Checklist = v
	case FieldDocuments:
		v, ok := value.([]Document)
		if !ok {
			return typeError(field, value)
		}
		m.Documents = v
	case FieldLogs:
		v, ok := value.([]FlightLog)
		if !ok {
			return typeError(field, value)
		}
		m.Logs = v
	case FieldSignaturePilote:
		return setSignature(&m.SignaturePilote, field, value)
	case FieldSignatureClient:
		return setSignature(&m.SignatureClient, field, value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

func setString(dst *string, field string, value any) error {
	v, ok := value.(string)
	if !ok {
		return typeError(field, value)
	}
	*dst = v
	return nil
}

// setSignature accepts a payload string, a *string, or nil (signature
// cleared).
func setSignature(dst **string, field string, value any) error {
	switch v := value.(type) {
	case nil:
		*dst = nil
	case string:
		*dst = &v
	case *string:
		*dst = v
	default:
		return typeError(field, value)
	}
	return nil
}

func typeError(field string, value any) error {
	return fmt.Errorf("field %s: unsupported value type %T", field, value)
}
