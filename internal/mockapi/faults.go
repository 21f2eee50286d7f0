package mockapi

import (
	"net/http"
	"sync"
)

type fault struct {
	status  int
	message string
	html    bool
	drop    bool
}

// faultQueue holds one-shot faults per request path.
type faultQueue struct {
	mu     sync.Mutex
	byPath map[string][]fault
}

func (q *faultQueue) push(path string, f fault) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.byPath == nil {
		q.byPath = make(map[string][]fault)
	}
	q.byPath[path] = append(q.byPath[path], f)
}

func (q *faultQueue) pop(path string) (fault, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.byPath[path]
	if len(pending) == 0 {
		return fault{}, false
	}
	q.byPath[path] = pending[1:]
	return pending[0], true
}

// FailNext makes the next request to path answer with status and a JSON
// error message.
func (s *Server) FailNext(path string, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	s.faults.push(path, fault{status: status, message: message})
}

// HTMLNext makes the next request to path answer with the login page.
func (s *Server) HTMLNext(path string) {
	s.faults.push(path, fault{html: true})
}

// DropNext aborts the connection of the next request to path, which the
// client sees as a network failure.
func (s *Server) DropNext(path string) {
	s.faults.push(path, fault{drop: true})
}
