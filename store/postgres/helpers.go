package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix returns a LIKE pattern matching ids that start with prefix.
func likePrefix(prefix string) string {
	return likeReplacer.Replace(prefix) + "%"
}
