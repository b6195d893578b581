package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnershipTags(t *testing.T) {
	tags := ownershipTags("the-uuid", "/my-app")
	require.Contains(t, tags, "consular-reg-id=the-uuid")
	require.Contains(t, tags, "consular-app-id=/my-app")
}

func TestExtractAppID(t *testing.T) {
	appID, ok, err := extractAppID("t1", []string{"consular-reg-id=the-uuid", "consular-app-id=/app-a"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/app-a", appID)
}

func TestExtractAppID_Absent(t *testing.T) {
	_, ok, err := extractAppID("t1", []string{"consular-reg-id=the-uuid"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExtractAppID_Ambiguous(t *testing.T) {
	_, _, err := extractAppID("t1", []string{
		"consular-app-id=/app-a",
		"consular-app-id=/app-b",
	})
	require.Error(t, err)
	var ambiguous *AmbiguousOwnership
	require.ErrorAs(t, err, &ambiguous)
	require.Equal(t, "t1", ambiguous.ServiceID)
}

func TestExtractAppID_ValueContainsEquals(t *testing.T) {
	appID, ok, err := extractAppID("t1", []string{"consular-app-id=/app=a"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/app=a", appID)
}

func TestHasTag(t *testing.T) {
	require.True(t, hasTag([]string{"a", "b"}, "b"))
	require.False(t, hasTag([]string{"a", "b"}, "c"))
}
