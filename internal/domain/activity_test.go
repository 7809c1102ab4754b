package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/activitylog/internal/domain"
)

func TestNewActivityEventAssignsDistinctUUIDs(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	a, err := domain.NewActivityEvent("u1", domain.ActivityUserLogin, nil, now)
	require.NoError(t, err)
	b, err := domain.NewActivityEvent("u2", domain.ActivityItemPurchased, map[string]any{"sku": "A1"}, now)
	require.NoError(t, err)

	require.NotEqual(t, a.EventID, b.EventID)
	_, err = uuid.Parse(a.EventID)
	require.NoError(t, err)
	require.Equal(t, now.Truncate(time.Microsecond), a.OccurredAt)
	require.Nil(t, a.ProcessedAt)
	require.NotNil(t, a.Metadata)
}

func TestNewActivityEventValidatesUser(t *testing.T) {
	_, err := domain.NewActivityEvent("   ", domain.ActivityPageView, nil, time.Now())
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "userId", validationErr.Field)

	long := make([]byte, domain.MaxUserIDLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = domain.NewActivityEvent(string(long), domain.ActivityPageView, nil, time.Now())
	require.True(t, domain.IsValidation(err))
}

func TestParseActivityType(t *testing.T) {
	parsed, err := domain.ParseActivityType(" profile_updated ")
	require.NoError(t, err)
	require.Equal(t, domain.ActivityProfileUpdated, parsed)

	for _, raw := range []string{"", "LOGIN", "USER LOGIN", "purchase"} {
		_, err := domain.ParseActivityType(raw)
		require.Truef(t, domain.IsValidation(err), "expected validation error for %q", raw)
	}
}

func TestDecodeActivityRecordRejectsMalformedRecords(t *testing.T) {
	cases := map[string]string{
		"unknown type":    `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"u1","activityType":"TELEPORT","metadata":{},"occurredAt":"2024-05-01T12:00:00Z"}`,
		"lowercase type":  `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"u1","activityType":"user_login","metadata":{},"occurredAt":"2024-05-01T12:00:00Z"}`,
		"missing user":    `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","activityType":"USER_LOGIN","occurredAt":"2024-05-01T12:00:00Z"}`,
		"bad event id":    `{"eventId":"abc","userId":"u1","activityType":"USER_LOGIN","occurredAt":"2024-05-01T12:00:00Z"}`,
		"unknown field":   `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"u1","activityType":"USER_LOGIN","occurredAt":"2024-05-01T12:00:00Z","extra":1}`,
		"missing time":    `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"u1","activityType":"USER_LOGIN"}`,
		"not json":        `USER_LOGIN`,
		"trailing object": `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"u1","activityType":"USER_LOGIN","occurredAt":"2024-05-01T12:00:00Z"}{}`,
		"blank user":      `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"   ","activityType":"USER_LOGIN","occurredAt":"2024-05-01T12:00:00Z"}`,
		"oversized user":  `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"` + strings.Repeat("u", domain.MaxUserIDLength+1) + `","activityType":"USER_LOGIN","occurredAt":"2024-05-01T12:00:00Z"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.DecodeActivityRecord([]byte(raw))
			require.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

func TestDecodeActivityRecordNormalisesFields(t *testing.T) {
	raw := `{"eventId":"5f0c8d1e-0f5e-4a37-9a34-5d3f3a2f8b61","userId":"  u1 ","activityType":"USER_LOGIN","occurredAt":"2024-05-01T14:00:00.123456789+02:00"}`

	event, err := domain.DecodeActivityRecord([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "u1", event.UserID)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC), event.OccurredAt)
}

func TestDecodeActivityRecordRoundTripsEnvelope(t *testing.T) {
	event, err := domain.NewActivityEvent("u1", domain.ActivityButtonClick, map[string]any{"id": "buy"}, time.Now())
	require.NoError(t, err)

	raw, err := event.Envelope().Encode()
	require.NoError(t, err)

	decoded, err := domain.DecodeActivityRecord(raw)
	require.NoError(t, err)
	require.Equal(t, event.EventID, decoded.EventID)
	require.Equal(t, event.ActivityType, decoded.ActivityType)
	require.True(t, event.OccurredAt.Equal(decoded.OccurredAt))
	require.Equal(t, "buy", decoded.Metadata["id"])
}
