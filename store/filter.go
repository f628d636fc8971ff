package store

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Thread list filtering uses CEL expressions supplied by the client, e.g.
// `pinned && title.contains("roadmap")`. Expressions are evaluated against
// the listed threads after the ownership query.

var threadFilterEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("title", cel.StringType),
		cel.Variable("pinned", cel.BoolType),
		cel.Variable("is_live", cel.BoolType),
		cel.Variable("created_ts", cel.IntType),
		cel.Variable("updated_ts", cel.IntType),
	)
	if err != nil {
		panic(err)
	}
	return env
}()

// ThreadFilter is a compiled CEL predicate over threads.
type ThreadFilter struct {
	program cel.Program
}

// CompileThreadFilter compiles a CEL filter expression for thread listing.
func CompileThreadFilter(expression string) (*ThreadFilter, error) {
	ast, issues := threadFilterEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "invalid filter expression")
	}
	program, err := threadFilterEnv.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build filter program")
	}
	return &ThreadFilter{program: program}, nil
}

// Match evaluates the filter against a thread.
func (f *ThreadFilter) Match(thread *Thread) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"title":      thread.Title,
		"pinned":     thread.Pinned,
		"is_live":    thread.IsLive,
		"created_ts": thread.CreatedTs,
		"updated_ts": thread.UpdatedTs,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to evaluate filter")
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("filter expression must evaluate to a boolean")
	}
	return matched, nil
}

// FilterThreads returns the threads matching the compiled filter.
func FilterThreads(threads []*Thread, filter *ThreadFilter) ([]*Thread, error) {
	if filter == nil {
		return threads, nil
	}
	matched := make([]*Thread, 0, len(threads))
	for _, thread := range threads {
		ok, err := filter.Match(thread)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, thread)
		}
	}
	return matched, nil
}
