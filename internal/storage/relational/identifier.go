// ABOUTME: Allow-list validation for table names built from runtime strings
// ABOUTME: Validated names are still quoted before they reach a statement
package relational

import (
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"github.com/harper/brain-migrate/internal/models"
)

// MaxIdentifierLength leaves room for the longest derived suffix
// ("_attributes_pkey") under the Postgres 63 byte limit.
const MaxIdentifierLength = 47

var identifierRx = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks that name is a lower-case SQL identifier that is
// safe to use as a table name or table name prefix.
func ValidateIdentifier(name string) error {
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%w: %q is longer than %d bytes", models.ErrInvalidIdentifier, name, MaxIdentifierLength)
	}
	if !identifierRx.MatchString(name) {
		return fmt.Errorf("%w: %q", models.ErrInvalidIdentifier, name)
	}
	return nil
}

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}
