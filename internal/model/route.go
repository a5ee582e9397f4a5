package model

import "strings"

// RouteKind identifies the in-app destination of a deep link.
type RouteKind string

const (
	RouteNone          RouteKind = ""
	RouteAssignment    RouteKind = "assignments"
	RouteTest          RouteKind = "tests"
	RouteLiveClass     RouteKind = "live-classes"
	RouteAnnouncement  RouteKind = "announcements"
	RouteCourse        RouteKind = "courses"
	RouteMessages      RouteKind = "messages"
	RouteNotifications RouteKind = "notifications"
)

// Route is a parsed deep link.
type Route struct {
	Kind RouteKind
	ID   string
}

// ParseLink parses links of the form /{kind}[/{id}]. Unknown or empty
// links yield RouteNone.
func ParseLink(link string) Route {
	link = strings.TrimSpace(link)
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	parts := strings.Split(strings.Trim(link, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return Route{}
	}

	kind := RouteKind(parts[0])
	switch kind {
	case RouteAssignment, RouteTest, RouteLiveClass, RouteAnnouncement,
		RouteCourse, RouteMessages, RouteNotifications:
	default:
		return Route{}
	}

	r := Route{Kind: kind}
	if len(parts) > 1 {
		r.ID = parts[1]
	}
	return r
}

// Link formats a deep link for kind and id.
func Link(kind RouteKind, id string) string {
	if id == "" {
		return "/" + string(kind)
	}
	return "/" + string(kind) + "/" + id
}
