package handlers

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Welcome answers GET / with a plain text greeting.
func Welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "Welcome to songdb!")
}

// VisitCounter answers GET /count with the number of times it was called
// since the process started.
type VisitCounter struct {
	n atomic.Int64
}

func (c *VisitCounter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := c.n.Add(1)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Visit count: %d\n", n)
}
