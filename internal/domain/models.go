package domain

import "time"

// Document describes a single PDF discovered by a connector. Instances are
// immutable for the duration of one poll iteration; the Identifier is the
// stable, source-unique dedup key.
type Document struct {
	Identifier  string
	Name        string
	ModifiedAt  *time.Time
	DownloadURL string
}

// Route is the pipeline a document is dispatched to.
type Route string

const (
	RouteMarkdown Route = "markdown"
	RouteMindmap  Route = "mindmap"
)
