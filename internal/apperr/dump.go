package apperr

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Dump is a loggable breakdown of an error chain
type Dump struct {
	TopMessage   string
	Kind         Kind
	Chain        []string
	PGCode       string
	PGConstraint string
	PGTable      string
	PGDetail     string
}

// DumpOf walks err's chain and extracts Postgres details when present.
func DumpOf(err error) Dump {
	if err == nil {
		return Dump{}
	}

	d := Dump{TopMessage: err.Error(), Kind: KindOf(err)}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
	}
	return d
}

// Fields renders the dump as zap fields.
func (d Dump) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("error", d.TopMessage),
		zap.String("error_kind", string(d.Kind)),
		zap.Strings("error_chain", d.Chain),
	}
	if d.PGCode != "" {
		fields = append(fields,
			zap.String("pg_code", d.PGCode),
			zap.String("pg_constraint", d.PGConstraint),
			zap.String("pg_table", d.PGTable),
			zap.String("pg_detail", d.PGDetail),
		)
	}
	return fields
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
