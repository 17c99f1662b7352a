// Package google provides OAuth2 authentication for the Gmail API.
//
// The server authenticates with a client secret file and a cached user token
// on disk. Tokens refresh automatically and refreshed tokens are written back,
// so a one-time authorization survives restarts. CheckAuth backs the health
// endpoint's upstream authentication flag.
package google
