package instagram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the private API host used by the mobile app
	BaseURL = "https://i.instagram.com"

	// LoginEndpoint authenticates a username and password
	LoginEndpoint = "/api/v1/accounts/login/"

	// FriendshipsEndpoint is the pattern for follower and following lists
	FriendshipsEndpoint = "/api/v1/friendships/%s/%s/"

	// AppID identifies the web client to the API
	AppID = "936619743392459"

	// DefaultPageSize is the number of users requested per list page
	DefaultPageSize = 200

	// MaxPageSize is the largest page the API honours
	MaxPageSize = 1000
)

// ListType selects one direction of the follow graph
type ListType int

const (
	Followers ListType = iota
	Following
)

// String returns the path segment used by the friendships endpoint
func (l ListType) String() string {
	switch l {
	case Followers:
		return "followers"
	case Following:
		return "following"
	default:
		return "unknown"
	}
}

// GetLoginURL constructs the login URL for base
func GetLoginURL(base string) string {
	return strings.TrimRight(base, "/") + LoginEndpoint
}

// GetFriendshipsURL constructs the URL for one page of a follow list
func GetFriendshipsURL(base, userID string, list ListType, count int, maxID string) string {
	if count <= 0 {
		count = DefaultPageSize
	} else if count > MaxPageSize {
		count = MaxPageSize
	}

	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("search_surface", "follow_list_page")
	if maxID != "" {
		params.Set("max_id", maxID)
	}

	path := fmt.Sprintf(FriendshipsEndpoint, url.PathEscape(userID), list)
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(base, "/"), path, params.Encode())
}

// GetUserProfileURL constructs the public profile URL for a user
func GetUserProfileURL(username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("https://www.instagram.com/%s/", username)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @, surrounding spaces and trailing slashes
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}

// encodePassword wraps a plaintext password in the format the login
// endpoint accepts without client-side encryption.
func encodePassword(password string, unix int64) string {
	return fmt.Sprintf("#PWD_INSTAGRAM:0:%d:%s", unix, password)
}
