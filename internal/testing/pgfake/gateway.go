package pgfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// QueryFunc answers one query.
type QueryFunc func(args []any) (*Rows, error)

// ExecFunc answers one statement.
type ExecFunc func(args []any) error

// Call records one statement execution.
type Call struct {
	SQL  string
	Args []any
}

// Gateway is a scripted db.Gateway keyed by exact SQL text. Unscripted
// queries fail; unscripted statements succeed and are recorded.
type Gateway struct {
	mu      sync.Mutex
	queries map[string]QueryFunc
	execs   map[string]ExecFunc
	calls   []Call
	closed  bool
}

// NewGateway returns an empty scripted gateway.
func NewGateway() *Gateway {
	return &Gateway{queries: make(map[string]QueryFunc), execs: make(map[string]ExecFunc)}
}

// OnQuery scripts the answer for sql.
func (g *Gateway) OnQuery(sql string, fn QueryFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries[sql] = fn
}

// OnExec scripts the outcome of statements and batch rows for sql.
func (g *Gateway) OnExec(sql string, fn ExecFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.execs[sql] = fn
}

func (g *Gateway) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	g.mu.Lock()
	fn, ok := g.queries[sql]
	g.calls = append(g.calls, Call{SQL: sql, Args: args})
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pgfake: unexpected query %q", sql)
	}
	rows, err := fn(args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gateway) Exec(_ context.Context, sql string, args ...any) error {
	g.mu.Lock()
	fn := g.execs[sql]
	g.calls = append(g.calls, Call{SQL: sql, Args: args})
	g.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(args)
}

func (g *Gateway) ExecBatch(_ context.Context, sql string, argRows [][]any) error {
	g.mu.Lock()
	fn := g.execs[sql]
	for _, args := range argRows {
		g.calls = append(g.calls, Call{SQL: sql, Args: args})
	}
	g.mu.Unlock()
	if fn == nil {
		return nil
	}
	for _, args := range argRows {
		if err := fn(args); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

// Calls returns every recorded execution of sql.
func (g *Gateway) Calls(sql string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.calls {
		if c.SQL == sql {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns the total number of recorded queries and statements.
func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Closed reports whether Close was called.
func (g *Gateway) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
