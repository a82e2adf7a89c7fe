package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const maxChainEntries = 16

// ErrorDump flattens an error tree into loggable fields.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	DB         *DBDump  `json:"db,omitempty"`
}

// DBDump carries the driver detail of the first database error in the tree.
type DBDump struct {
	Driver     string `json:"driver"`
	Code       string `json:"code,omitempty"`
	Extended   string `json:"extended,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	d.Chain = walk(err, nil)
	d.DB = dumpDB(err)
	return d
}

// walk visits err depth first, following both Unwrap() error and
// Unwrap() []error, and stops at maxChainEntries.
func walk(err error, out []string) []string {
	if err == nil || len(out) >= maxChainEntries {
		return out
	}
	out = append(out, fmt.Sprintf("%T: %v", err, err))
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			out = walk(inner, out)
		}
	case interface{ Unwrap() error }:
		out = walk(u.Unwrap(), out)
	}
	return out
}

func dumpDB(err error) *DBDump {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DBDump{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DBDump{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &DBDump{
			Driver:   "sqlite3",
			Code:     fmt.Sprint(int(liteErr.Code)),
			Extended: fmt.Sprint(int(liteErr.ExtendedCode)),
			Message:  liteErr.Error(),
		}
	}
	return nil
}
