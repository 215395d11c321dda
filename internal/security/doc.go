// Package security provides the control API's authentication and
// throttling primitives.
//
// JWTHandler issues and validates HS256 bearer tokens carrying a user ID
// and a role (viewer, operator, admin), with the signing algorithm
// pinned to prevent algorithm-confusion attacks. ClientRateLimiter
// enforces a per-client token-bucket request budget so one connection
// cannot starve the others sharing the server.
package security
