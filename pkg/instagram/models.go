package instagram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"followback/pkg/relationships"
)

// FlexID decodes a value the API sends either as a JSON number or a JSON
// string, and holds it in canonical decimal form.
type FlexID string

// UnmarshalJSON accepts 123, "123" and null
func (f *FlexID) UnmarshalJSON(data []byte) error {
	raw, err := stringOrNumber(data)
	if err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*f = FlexID(canonicalID(raw))
	return nil
}

// Cursor is an opaque pagination token. Like FlexID it may arrive as a number
// or a string, but it is passed back to the API exactly as received.
type Cursor string

// UnmarshalJSON accepts 123, "0123" and null
func (c *Cursor) UnmarshalJSON(data []byte) error {
	raw, err := stringOrNumber(data)
	if err != nil {
		return fmt.Errorf("cursor is neither string nor number: %s", data)
	}
	*c = Cursor(raw)
	return nil
}

// stringOrNumber returns the text of a JSON string or number, or "" for null
func stringOrNumber(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}

	if data[0] == '"' {
		var raw string
		err := json.Unmarshal(data, &raw)
		return raw, err
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// canonicalID strips leading zeros and surrounding space from decimal ids.
// Values that are not plain unsigned integers are kept as given.
func canonicalID(raw string) string {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return raw
}

// AccountID converts f to the relationships identifier
func (f FlexID) AccountID() relationships.AccountID {
	return relationships.AccountID(f)
}

// LoginResponse is the body returned by the login endpoint
type LoginResponse struct {
	Status             string        `json:"status"`
	Message            string        `json:"message"`
	ErrorType          string        `json:"error_type"`
	InvalidCredentials bool          `json:"invalid_credentials"`
	TwoFactorRequired  bool          `json:"two_factor_required"`
	CheckpointURL      string        `json:"checkpoint_url"`
	LoggedInUser       *LoggedInUser `json:"logged_in_user"`
}

// LoggedInUser is the authenticated account
type LoggedInUser struct {
	PK       FlexID `json:"pk"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// FriendshipsResponse is one page of a follower or following list
type FriendshipsResponse struct {
	Users     []User `json:"users"`
	NextMaxID Cursor `json:"next_max_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// User represents one account in a follow list
type User struct {
	PK            FlexID `json:"pk"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
}

// Profile converts u to the relationships profile snapshot
func (u User) Profile() relationships.Profile {
	return relationships.Profile{
		Handle:      u.Username,
		DisplayName: u.FullName,
		AvatarURL:   u.ProfilePicURL,
	}
}

// apiStatus is the common envelope used to read error details from non-200 bodies
type apiStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}
