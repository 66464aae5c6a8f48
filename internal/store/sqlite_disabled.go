//go:build !sqlite
// +build !sqlite

package store

import (
	"errors"

	logx "chimed/pkg/logx"
)

func openSQLite(_ Config, _ logx.Logger) (Store, error) {
	return nil, errors.New("sqlite storage not built in (build with -tags sqlite)")
}
