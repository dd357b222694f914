package spotify

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile(t *testing.T) {
	var gotAuth, gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		respond(http.StatusOK, `{"id":"user-1","display_name":"Jane Listener","uri":"spotify:user:user-1"}`)(w, r)
	})

	profile, err := client.Profile(context.Background(), "AT")
	require.NoError(t, err)

	assert.Equal(t, &Profile{ID: "user-1", DisplayName: "Jane Listener"}, profile)
	assert.Equal(t, "Bearer AT", gotAuth)
	assert.Equal(t, "/v1/me", gotPath)
}

func TestProfile_Unauthorized(t *testing.T) {
	client, _ := newTestClient(t, respond(http.StatusUnauthorized, `{"error":{"status":401,"message":"The access token expired"}}`))

	profile, err := client.Profile(context.Background(), "AT")
	assert.Nil(t, profile)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, OutcomeUnauthorized, Classify(err))
}

func TestProfile_ServerError(t *testing.T) {
	client, _ := newTestClient(t, respond(http.StatusInternalServerError, `{"error":{"status":500,"message":"boom"}}`))

	_, err := client.Profile(context.Background(), "AT")
	require.Error(t, err)
	assert.Equal(t, OutcomeTransportError, Classify(err))
}
