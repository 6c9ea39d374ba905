// Package main runs the chat relay behind the personal website assistant.
//
// The server issues short-lived tokens to the site, verifies them on every
// chat request and streams model output back as server-sent events, running
// server-side tools in between.
//
// Commands:
//   - serve: start the HTTP server (default)
//   - token: mint a token with the configured secret and print it
package main
