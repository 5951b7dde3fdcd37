// Package main hosts the pubscraper entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server edits the conference list and the roster, drives the crawl
//     controller (start, stop, resume, reset) and serves progress, results and the exported spreadsheet.
//   - Controller: internal/controller owns one crawl session. A single work loop walks the
//     conference x author queue, checks for a stop request between units and keeps its cursor so a
//     resumed run continues exactly where it paused.
//   - Page sources: a chromedp browser (browser.mode=headless) or a colly/goquery HTTP client
//     (browser.mode=static) loads each proceedings search page. browser.mode=auto fetches statically
//     and promotes client-rendered pages to Chrome. All modes share the optional per-host rate
//     limiter and honor robots.txt when browser.respect_robots is set.
//   - PDF lookup: the page resolver searches a second site for the title; the arxiv resolver queries
//     the arXiv API and keeps the closest title by edit distance.
//   - Export & fanout: the finished run is rendered to an .xlsx workbook with excelize and written to
//     the configured BlobStore (memory/local/GCS). A completion notice is published to Pub/Sub and the
//     records are archived to Postgres or SQLite when a database is configured.
//   - Run history: with a database, a progress sink records every run (status, cursor, record count,
//     last error), served on GET /v1/runs.
//   - Configuration & plumbing: Viper reads the config file and PUBSCRAPER_* env vars; zap provides
//     structured logging; Prometheus metrics cover HTTP traffic and crawl progress on /metrics.
//
// Quick checklist:
//   - One-shot: pubscraper run --roster members.xlsx --preset icml --year 2025 -o publications.xlsx
//   - Service: pubscraper serve --config config.yaml, then POST /v1/crawl/start.
//   - Containers need browser.no_sandbox=true (the default) for Chrome; use browser.mode=static when
//     the proceedings site renders server-side.
package main
