// Package instagram fetches follow relationships from Instagram's private API.
//
// A Client logs in with a username and password, then pages through the
// authenticated account's followers and following lists. Each call uses its
// own cookie jar and authorization header, and outgoing requests share one
// pacing limiter.
//
// Failures are returned as *errors.Error values:
//   - auth: rejected credentials, two-factor or checkpoint challenges
//   - rate_limit: HTTP 429 or an explicit throttle response
//   - server_error: HTTP 5xx
//   - parsing: a body that is not the expected JSON
//   - network: transport failures and timeouts
//
// Example usage:
//
//	client := instagram.NewClient(instagram.Options{
//	    Timeout:           30 * time.Second,
//	    RequestsPerSecond: 2,
//	})
//
//	rel, err := client.FetchRelationships(ctx, "username", "password")
//	if errors.IsAuth(err) {
//	    // Ask for credentials again
//	}
//	result := relationships.ComputeNonFollowers(rel.Following, rel.Followers)
package instagram
