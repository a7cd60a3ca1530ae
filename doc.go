// Package simprotap is a Singer tap that extracts data from the simPRO job
// management API.
//
// The tap reads a configuration (access token, company, tenant base URL), an
// optional catalog selecting streams and an optional state holding per-stream
// watermarks. It writes Singer SCHEMA, RECORD and STATE messages as JSON lines
// to stdout; logs go to stderr.
//
// # Streams
//
// Streams form a tree. Top-level streams are listed page by page, newest
// first, and listing stops at the first row modified before the stream's
// watermark. Child streams are derived from their parent's rows, either from
// an array embedded in the parent (customer_sites, invoice_jobs,
// schedules_blocks) or by requesting a nested endpoint once per parent row
// (job_sections, job_cost_centers, timesheets and so on). A child is only
// synced when it or one of its descendants is selected.
//
// # Quick Start
//
//	simpro-tap --config config.json --discover > catalog.json
//	# mark streams with "selected": true, then
//	simpro-tap --config config.json --catalog catalog.json --state state.json > out.jsonl
//
// # Key Packages
//
//	cmd/simpro-tap                  - CLI (sync, discover, streams, version)
//	pkg/connector/sources/simpro    - Stream tree, fetcher, orchestrator and driver
//	pkg/connector/core              - Stream descriptors, rows, schemas, bookmarks
//	pkg/connector/registry          - Typed stream registry
//	pkg/clients                     - Request gate (rate + concurrency) and HTTP client
//	pkg/catalog                     - Embedded schemas, discovery and selection
//	pkg/singer                      - Singer message writer and state reader
//	pkg/pathtemplate                - Endpoint path templates
//	pkg/config                      - Tap configuration
//	pkg/errors                      - Structured error handling
//	pkg/logger                      - Structured logging to stderr
//	pkg/metrics                     - Prometheus collectors
//	pkg/observability               - OpenTelemetry tracing setup
//	pkg/compression                 - Output and state file codecs
//	internal/pipeline               - Ordered bounded-concurrency map
//
// # Request Budget
//
// Every request passes through a single gate that bounds in-flight requests
// and admits them at a steady rate (8 per second with a burst of 1 by
// default). Errors are not retried: a failing stream stops the run, and the
// state written so far lets the next run resume.
package simprotap
