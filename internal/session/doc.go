// Package session keeps operator sessions in memory, rotating the opaque
// refresh token on every use so a stolen token can be replayed at most once.
package session
