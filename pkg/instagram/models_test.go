package instagram

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followback/pkg/relationships"
)

func TestFlexIDDecoding(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected FlexID
	}{
		{"number", `{"pk": 1234567890123}`, "1234567890123"},
		{"string", `{"pk": "1234567890123"}`, "1234567890123"},
		{"leading zeros", `{"pk": "000123"}`, "123"},
		{"padded string", `{"pk": " 77 "}`, "77"},
		{"null", `{"pk": null}`, ""},
		{"missing", `{}`, ""},
		{"opaque id", `{"pk": "QVFDabc"}`, "QVFDabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u User
			require.NoError(t, json.Unmarshal([]byte(tt.input), &u))
			assert.Equal(t, tt.expected, u.PK)
		})
	}
}

func TestFlexIDRejectsObjects(t *testing.T) {
	var u User
	assert.Error(t, json.Unmarshal([]byte(`{"pk": {"id": 1}}`), &u))
}

func TestNumericAndStringIDsMatch(t *testing.T) {
	var followers, following FriendshipsResponse
	require.NoError(t, json.Unmarshal([]byte(`{"users":[{"pk": 17841400000000001, "username": "a"}]}`), &followers))
	require.NoError(t, json.Unmarshal([]byte(`{"users":[{"pk": "17841400000000001", "username": "a"}]}`), &following))

	assert.Equal(t, followers.Users[0].PK.AccountID(), following.Users[0].PK.AccountID())
}

func TestUserProfile(t *testing.T) {
	u := User{PK: "1", Username: "alice", FullName: "Alice A", ProfilePicURL: "https://cdn/a.jpg"}

	assert.Equal(t, relationships.Profile{
		Handle:      "alice",
		DisplayName: "Alice A",
		AvatarURL:   "https://cdn/a.jpg",
	}, u.Profile())
	assert.Equal(t, relationships.AccountID("1"), u.PK.AccountID())
}

func TestNextMaxIDAcceptsNumber(t *testing.T) {
	var page FriendshipsResponse
	require.NoError(t, json.Unmarshal([]byte(`{"users":[],"next_max_id":200,"status":"ok"}`), &page))
	assert.Equal(t, Cursor("200"), page.NextMaxID)
}

func TestNextMaxIDKeptVerbatim(t *testing.T) {
	tests := []struct {
		body string
		want Cursor
	}{
		{`{"next_max_id":"0050"}`, "0050"},
		{`{"next_max_id":" 12 "}`, " 12 "},
		{`{"next_max_id":"QVFDa2x3"}`, "QVFDa2x3"},
		{`{"next_max_id":null}`, ""},
		{`{}`, ""},
	}

	for _, tt := range tests {
		var page FriendshipsResponse
		require.NoError(t, json.Unmarshal([]byte(tt.body), &page), tt.body)
		assert.Equal(t, tt.want, page.NextMaxID, tt.body)
	}

	var page FriendshipsResponse
	assert.Error(t, json.Unmarshal([]byte(`{"next_max_id":{"a":1}}`), &page))
}
