// Package jwt mints and verifies signed session tokens for deployments that
// want forged bearer tokens rejected before any store round trip.
package jwt
