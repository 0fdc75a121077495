//go:build !cgo

package sqlstore

import (
	"net/url"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}
