package audit

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// RedactionMarker replaces the value of every PII key before an audit record
// is persisted.
const RedactionMarker = "[REDACTED]"

// DefaultPIIKeys covers names, national identity numbers, contact data, dates
// of birth and financial instrument numbers. Turkish aliases are included
// because legacy callers still send them.
var DefaultPIIKeys = []string{
	"name", "first_name", "last_name", "surname", "ad", "soyad",
	"national_id", "tc_kimlik_no", "ssn",
	"email", "phone", "address",
	"date_of_birth", "birth_date", "dogum_tarihi",
	"card_number", "card_last4", "iban", "account_number",
}

// Redactor masks PII keys in flat audit detail maps.
type Redactor struct {
	keys mapset.Set[string]
}

// NewRedactor returns a Redactor for DefaultPIIKeys plus extra. Keys are
// matched case-insensitively.
func NewRedactor(extra ...string) *Redactor {
	keys := mapset.NewThreadUnsafeSet[string]()
	for _, k := range DefaultPIIKeys {
		keys.Add(normalizeKey(k))
	}
	for _, k := range extra {
		if k = normalizeKey(k); k != "" {
			keys.Add(k)
		}
	}
	return &Redactor{keys: keys}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// IsPII reports whether key is in the configured PII set.
func (r *Redactor) IsPII(key string) bool {
	return r.keys.Contains(normalizeKey(key))
}

// Redact returns a copy of details with PII values replaced by
// RedactionMarker. Values that are themselves maps are redacted one level
// deep. The input is never modified.
func (r *Redactor) Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if r.IsPII(k) {
			out[k] = RedactionMarker
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = r.redactFlat(nested)
		case map[string]string:
			m := make(map[string]any, len(nested))
			for nk, nv := range nested {
				m[nk] = nv
			}
			out[k] = r.redactFlat(m)
		default:
			out[k] = v
		}
	}
	return out
}

func (r *Redactor) redactFlat(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.IsPII(k) {
			out[k] = RedactionMarker
		} else {
			out[k] = v
		}
	}
	return out
}
