package rest

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	restPrefix    = "/rest/v1/"
	authPrefix    = "/auth/v1/"
	storagePrefix = "/storage/v1/"
)

// query builds PostgREST filter strings.
type query struct {
	v url.Values
}

func newQuery(sel string) *query {
	q := &query{v: url.Values{}}
	if sel != "" {
		q.v.Set("select", sel)
	}
	return q
}

func (q *query) eq(col, val string) *query {
	q.v.Add(col, "eq."+val)
	return q
}

func (q *query) is(col string, val bool) *query {
	q.v.Add(col, "eq."+strconv.FormatBool(val))
	return q
}

// or adds a disjunction such as or=(sender_id.eq.a,recipient_id.eq.a).
func (q *query) or(conds ...string) *query {
	q.v.Set("or", "("+strings.Join(conds, ",")+")")
	return q
}

func (q *query) order(col string, asc bool) *query {
	dir := "desc"
	if asc {
		dir = "asc"
	}
	q.v.Set("order", col+"."+dir)
	return q
}

func (q *query) limit(n int) *query {
	if n > 0 {
		q.v.Set("limit", strconv.Itoa(n))
	}
	return q
}

func (q *query) values() url.Values {
	return q.v
}

func table(name string) string {
	return restPrefix + name
}

func preferHeader(prefs ...string) http.Header {
	h := http.Header{}
	h.Set("Prefer", strings.Join(prefs, ","))
	return h
}

// parseContentRange extracts the total from "0-24/573" or "*/0".
func parseContentRange(v string) (int, bool) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
