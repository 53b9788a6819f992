// Package http provides HTTP handlers and middleware for the study group API.
//
// The router exposes the following endpoints:
//   - POST /sessions: issues a session token. Body: {"email","password"}. The
//     token is returned in the body, the `X-Session-Token` header, and a
//     `session_token` cookie.
//   - DELETE /sessions/current: revokes the caller's session and clears the
//     cookie. DELETE /sessions/{token} lets administrators revoke any token.
//   - GET /users, POST /users, GET /users/{id}: administrator controlled
//     account management exchanging the `userDTO` payload in user_handler.go.
//   - GET /groups, POST /groups, GET /groups/{id}: group catalog. POST
//     /groups/{id}/members and PUT /groups/{id}/members/{userID} manage
//     membership, POST /groups/{id}/schedule generates the weekly meetings.
//     All group mutations require admin privileges.
//   - GET /meetings/{id}/alternatives: sibling meetings the caller may visit
//     instead of the given home meeting.
//   - GET /guest-visits, POST /guest-visits, DELETE /guest-visits/{meetingID}:
//     the caller's guest visit bookings.
//   - POST /groups/{id}/sync/calendar, /sync/rsvps, /sync/roster:
//     administrator triggered reconciliation of one group against the
//     external providers.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
