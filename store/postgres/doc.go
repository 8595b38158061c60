// Package postgres implements store.Store and feed.Feed using pgx/v5 with
// raw SQL. Documents live in a single JSONB table with a revision column;
// conditional writes compare that revision in the UPDATE predicate. Every
// write issues pg_notify inside its transaction, so only committed
// revisions are announced, and the feed LISTENs on a dedicated pooled
// connection. Schema changes ship as embedded SQL migrations.
package postgres
