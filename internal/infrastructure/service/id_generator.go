// Package service holds adapters that back application-layer ports:
// identifiers and parent notification delivery.
package service

import "github.com/google/uuid"

// UUIDGenerator produces random UUIDv4 identifiers.
type UUIDGenerator struct{}

// NewIDGenerator creates a UUIDGenerator.
func NewIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

// NewID implements command.IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
