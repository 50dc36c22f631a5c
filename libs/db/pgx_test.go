package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsConstraintViolation(t *testing.T) {
	slotErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "bookings_active_slot_uniq"})

	if !IsConstraintViolation(slotErr, "") {
		t.Fatal("expected any-constraint match")
	}
	if !IsConstraintViolation(slotErr, "bookings_active_slot_uniq") {
		t.Fatal("expected named constraint match")
	}
	if IsConstraintViolation(slotErr, "bookings_pkey") {
		t.Fatal("did not expect match on other constraint")
	}
	if IsConstraintViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a uniqueness conflict")
	}
	if IsConstraintViolation(errors.New("boom"), "") {
		t.Fatal("plain errors are not conflicts")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !IsForeignKeyViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeForeignKeyViolation})) {
		t.Fatal("expected wrapped foreign key violation to match")
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: CodeUniqueViolation}) {
		t.Fatal("unique violation is not a foreign key violation")
	}
}
