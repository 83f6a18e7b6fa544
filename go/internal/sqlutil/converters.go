package sqlutil

import (
	"database/sql"

	"github.com/google/uuid"
)

// Helper functions for converting between Go types and sql.Null* types

// ToNullUUID converts a Go UUID pointer to uuid.NullUUID
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// FromNullUUID converts uuid.NullUUID to a Go UUID pointer
func FromNullUUID(val uuid.NullUUID) *uuid.UUID {
	if !val.Valid {
		return nil
	}
	v := val.UUID
	return &v
}

// ToNullString converts a pointer to any string-kinded type to sql.NullString
func ToNullString[T ~string](val *T) sql.NullString {
	if val == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(*val), Valid: true}
}

// FromNullString converts sql.NullString to a typed pointer, nil when invalid
func FromNullString[T ~string](val sql.NullString) *T {
	if !val.Valid {
		return nil
	}
	v := T(val.String)
	return &v
}
