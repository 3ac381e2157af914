// Package harvest drives a paginated fetcher across a declared set of remote
// resources and keeps a per-resource outcome, so one missing or broken
// resource never costs the others.
package harvest

import (
	"context"
)

// Record is one row of a remote resource. No schema is assumed.
type Record = map[string]any

// RecordSet is the ordered concatenation of all pages of one resource.
type RecordSet = []Record

// Fetcher pulls the complete record set of one named resource.
type Fetcher interface {
	FetchAll(ctx context.Context, resource string, pageSize int) (RecordSet, error)
}

// Entry is the outcome of one resource: either Records or Err is set.
type Entry struct {
	Name    string
	Records RecordSet
	Err     error
}

// OK reports whether the resource was paginated to completion.
func (e Entry) OK() bool {
	return e.Err == nil
}

// Result maps resource names to their outcome, in the order the resources
// were declared.
type Result struct {
	order   []string
	entries map[string]Entry
}

func newResult(capacity int) *Result {
	return &Result{
		order:   make([]string, 0, capacity),
		entries: make(map[string]Entry, capacity),
	}
}

func (r *Result) put(e Entry) {
	if _, ok := r.entries[e.Name]; !ok {
		r.order = append(r.order, e.Name)
	}

	r.entries[e.Name] = e
}

// Names returns every attempted resource in declaration order.
func (r *Result) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of attempted resources.
func (r *Result) Len() int {
	return len(r.order)
}

// Get returns the outcome of name.
func (r *Result) Get(name string) (Entry, bool) {
	e, ok := r.entries[name]

	return e, ok
}

// Entries returns all outcomes in declaration order.
func (r *Result) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}

	return out
}

// Tables returns the record sets of the successful resources.
func (r *Result) Tables() map[string]RecordSet {
	out := make(map[string]RecordSet, len(r.entries))
	for name, e := range r.entries {
		if e.OK() {
			out[name] = e.Records
		}
	}

	return out
}

// Errors returns the failure of each resource that could not be fetched.
func (r *Result) Errors() map[string]error {
	out := make(map[string]error)
	for name, e := range r.entries {
		if !e.OK() {
			out[name] = e.Err
		}
	}

	return out
}

// Counts returns the row count of every successful resource.
func (r *Result) Counts() map[string]int {
	out := make(map[string]int, len(r.entries))
	for name, e := range r.entries {
		if e.OK() {
			out[name] = len(e.Records)
		}
	}

	return out
}

// UniqueNames drops empty and repeated names. The first occurrence wins and
// the order of the remaining names is kept.
func UniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))

	for _, name := range names {
		if name == "" {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		out = append(out, name)
	}

	return out
}
