// Package crawler defines the core domain types, collaborator interfaces and
// small pure helpers shared by the publication crawl: conference sources,
// publication records, the work cursor, author matching, deduplication and the
// linear retry policy. Concrete adapters (browsers, stores, publishers) live in
// sibling packages and depend on this one, never the other way around.
package crawler
