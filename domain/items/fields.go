package items

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
)

// Date and time layouts accepted from field input, most specific first.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"15:04:05",
	"15:04",
}

const (
	dateTimeStorageLayout = "2006-01-02 15:04:05"
	dateStorageLayout     = "2006-01-02"
	timeStorageLayout     = "15:04:05"
)

// seoKeySuffix marks the shadow detail that stores the URL-safe twin of a
// field value.
const seoKeySuffix = "_SEO"

// valueToString flattens a detail value to its storage representation.
// Multi-value selections become a comma separated list.
func valueToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format(dateTimeStorageLayout)
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, valueToString(item))
		}
		return strings.Join(parts, ",")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// applySaveMode transforms a raw field value according to the field's save
// behavior before it is written to a detail row.
func (s *Service) applySaveMode(options entities.FieldOptions, raw, encryptionKey string) (string, error) {
	if raw == "" {
		return "", nil
	}

	switch options.SaveMode {
	case entities.SaveModeSecure:
		return s.secureValue(options, raw, encryptionKey)
	case entities.SaveModeDatePart:
		return datePartValue(options.Granularity, raw), nil
	case entities.SaveModeNumeric:
		return strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), nil
	case entities.SaveModeHTML:
		return s.cleaner.CleanForStorage(raw), nil
	default:
		return raw, nil
	}
}

func (s *Service) secureValue(options entities.FieldOptions, raw, encryptionKey string) (string, error) {
	key := options.SecurityKey
	if key == "" {
		key = encryptionKey
	}

	switch options.SecurityMethod {
	case entities.SecurityMethodSHA512:
		return s.encryption.HashWithSha512(raw), nil
	case entities.SecurityMethodAESSalted:
		return s.encryption.EncryptWithAes(raw, key, true)
	case entities.SecurityMethodAES:
		return s.encryption.EncryptWithAes(raw, key, false)
	default:
		return "", apperror.ErrConfiguration.
			WithMessagef("unsupported security method '%s'", options.SecurityMethod)
	}
}

// datePartValue narrows a date-time value to the configured granularity.
// Unparsable input is stored as-is.
func datePartValue(granularity entities.DatePartGranularity, raw string) string {
	parsed, ok := parseDateTime(raw)
	if !ok {
		return raw
	}

	switch granularity {
	case entities.DatePartDate:
		return parsed.Format(dateStorageLayout)
	case entities.DatePartTime:
		return parsed.Format(timeStorageLayout)
	default:
		return parsed.Format(dateTimeStorageLayout)
	}
}

func parseDateTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// seoValue builds the URL-safe twin stored under the field's SEO shadow key.
func seoValue(value string) string {
	return slug.Make(value)
}

// parseSelectionIDs extracts the selected item ids of a linked-selection
// field. Accepts a comma separated string or a slice of ids.
func parseSelectionIDs(value any) []uint64 {
	var result []uint64
	appendID := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			result = append(result, id)
		}
	}

	switch v := value.(type) {
	case nil:
		return nil
	case string:
		for _, part := range strings.Split(v, ",") {
			appendID(part)
		}
	case []string:
		for _, part := range v {
			appendID(part)
		}
	case []any:
		for _, item := range v {
			appendID(valueToString(item))
		}
	case []uint64:
		for _, id := range v {
			if id > 0 {
				result = append(result, id)
			}
		}
	default:
		appendID(valueToString(v))
	}

	return result
}

// splitValueColumns distributes a stored value over the short and long value
// columns. A nil return means the column should be NULL.
func splitValueColumns(value string) (shortValue string, longValue any) {
	if len(value) > maxValueColumnLength {
		return "", value
	}
	return value, nil
}
