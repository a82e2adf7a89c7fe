package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgx := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", pgx), "") {
		t.Fatal("expected pgx unique violation")
	}
	if !IsUniqueViolation(pgx, "users_email_key") || IsUniqueViolation(pgx, "other") {
		t.Fatal("constraint name should be matched exactly for pgx errors")
	}

	pqErr := &pq.Error{Code: "23505", Constraint: "uq_donations_donor_donated_at"}
	if !IsUniqueViolation(pqErr, "uq_donations_donor_donated_at") {
		t.Fatal("expected lib/pq unique violation")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}

	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email"), "users.email") {
		t.Fatal("expected sqlite message fallback")
	}
	if IsUniqueViolation(errors.New("boom"), "") || IsUniqueViolation(nil, "") {
		t.Fatal("unexpected match")
	}
}
