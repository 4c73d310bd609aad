package items

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/encryption"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/htmlcleaner"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return &Service{
		log:        slog.Default(),
		encryption: encryption.NewService(slog.Default(), "0123456789abcdef0123456789abcdef"),
		cleaner:    htmlcleaner.New("example.com"),
	}
}

func TestValueToString(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "nil", value: nil, want: ""},
		{name: "string", value: "hello", want: "hello"},
		{name: "true", value: true, want: "1"},
		{name: "false", value: false, want: "0"},
		{name: "int", value: 42, want: "42"},
		{name: "float", value: 12.5, want: "12.5"},
		{name: "string slice", value: []string{"1", "2", "3"}, want: "1,2,3"},
		{name: "any slice", value: []any{float64(1), "2"}, want: "1,2"},
		{name: "time", value: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), want: "2024-03-15 10:30:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valueToString(tt.value))
		})
	}
}

func TestApplySaveModePlain(t *testing.T) {
	svc := newTestService(t)

	value, err := svc.applySaveMode(entities.FieldOptions{SaveMode: entities.SaveModePlain}, "as-is", "")

	require.NoError(t, err)
	assert.Equal(t, "as-is", value)
}

func TestApplySaveModeNumericNormalizesSeparator(t *testing.T) {
	svc := newTestService(t)

	value, err := svc.applySaveMode(entities.FieldOptions{SaveMode: entities.SaveModeNumeric}, " 1299,95 ", "")

	require.NoError(t, err)
	assert.Equal(t, "1299.95", value)
}

func TestApplySaveModeSecureHash(t *testing.T) {
	svc := newTestService(t)
	options := entities.FieldOptions{
		SaveMode:       entities.SaveModeSecure,
		SecurityMethod: entities.SecurityMethodSHA512,
	}

	value, err := svc.applySaveMode(options, "hunter2", "")

	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", value)
	assert.Equal(t, svc.encryption.HashWithSha512("hunter2"), value)
}

func TestApplySaveModeSecureAesRoundTrips(t *testing.T) {
	svc := newTestService(t)
	options := entities.FieldOptions{
		SaveMode:       entities.SaveModeSecure,
		SecurityMethod: entities.SecurityMethodAES,
	}

	value, err := svc.applySaveMode(options, "secret", "")

	require.NoError(t, err)
	decrypted, err := svc.encryption.DecryptWithAes(value, "")
	require.NoError(t, err)
	assert.Equal(t, "secret", decrypted)
}

func TestApplySaveModeSecureSaltedAesDiffersPerCall(t *testing.T) {
	svc := newTestService(t)
	options := entities.FieldOptions{
		SaveMode:       entities.SaveModeSecure,
		SecurityMethod: entities.SecurityMethodAESSalted,
	}

	first, err := svc.applySaveMode(options, "secret", "")
	require.NoError(t, err)
	second, err := svc.applySaveMode(options, "secret", "")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestApplySaveModeHTMLStripsScriptAndDomain(t *testing.T) {
	svc := newTestService(t)
	options := entities.FieldOptions{SaveMode: entities.SaveModeHTML}

	value, err := svc.applySaveMode(options, `<p>ok</p><script>alert(1)</script><a href="https://www.example.com/page">x</a>`, "")

	require.NoError(t, err)
	assert.NotContains(t, value, "<script>")
	assert.Contains(t, value, `href="/page"`)
}

func TestApplySaveModeEmptyValueStaysEmpty(t *testing.T) {
	svc := newTestService(t)
	options := entities.FieldOptions{
		SaveMode:       entities.SaveModeSecure,
		SecurityMethod: entities.SecurityMethodSHA512,
	}

	value, err := svc.applySaveMode(options, "", "")

	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestDatePartValue(t *testing.T) {
	tests := []struct {
		name        string
		granularity entities.DatePartGranularity
		raw         string
		want        string
	}{
		{name: "full datetime", granularity: entities.DatePartDateTime, raw: "2024-03-15 10:30:45", want: "2024-03-15 10:30:45"},
		{name: "date part", granularity: entities.DatePartDate, raw: "2024-03-15 10:30:45", want: "2024-03-15"},
		{name: "time part", granularity: entities.DatePartTime, raw: "2024-03-15 10:30:45", want: "10:30:45"},
		{name: "date only input", granularity: entities.DatePartDate, raw: "2024-03-15", want: "2024-03-15"},
		{name: "short time input", granularity: entities.DatePartTime, raw: "10:30", want: "10:30:00"},
		{name: "unparsable stays as-is", granularity: entities.DatePartDate, raw: "not a date", want: "not a date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, datePartValue(tt.granularity, tt.raw))
		})
	}
}

func TestParseSelectionIDs(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []uint64
	}{
		{name: "comma separated string", value: "1,2,3", want: []uint64{1, 2, 3}},
		{name: "string with spaces", value: " 1 , 2 ", want: []uint64{1, 2}},
		{name: "string slice", value: []string{"4", "5"}, want: []uint64{4, 5}},
		{name: "any slice", value: []any{float64(6), "7"}, want: []uint64{6, 7}},
		{name: "uint64 slice", value: []uint64{8, 9}, want: []uint64{8, 9}},
		{name: "single number", value: 10, want: []uint64{10}},
		{name: "empty string", value: "", want: nil},
		{name: "nil", value: nil, want: nil},
		{name: "zero ids dropped", value: "0,1", want: []uint64{1}},
		{name: "garbage dropped", value: "a,1,b", want: []uint64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSelectionIDs(tt.value))
		})
	}
}

func TestSeoValue(t *testing.T) {
	assert.Equal(t, "witte-sneakers-maat-42", seoValue("Witte Sneakers, maat 42!"))
}

func TestSplitValueColumns(t *testing.T) {
	short, long := splitValueColumns("small")
	assert.Equal(t, "small", short)
	assert.Nil(t, long)

	bigValue := strings.Repeat("x", maxValueColumnLength+1)
	short, long = splitValueColumns(bigValue)
	assert.Equal(t, "", short)
	assert.Equal(t, bigValue, long)

	boundary := strings.Repeat("x", maxValueColumnLength)
	short, long = splitValueColumns(boundary)
	assert.Equal(t, boundary, short)
	assert.Nil(t, long)
}
