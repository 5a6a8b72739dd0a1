// Package commands implements strait-export, a one-shot CSV export of a
// dashboard selection without running the server.
//
//	strait-export --from 2024-01-01 --to 2024-03-31 \
//	    --indicators TAIEX,CDS --source csv --path ./data/prices --out exports/
//
// The CSV goes to stdout unless --out names a file or directory. Logs are
// written as JSON to stderr.
//
// The load subcommand fills a postgres or sqlite source from the same
// price files:
//
//	strait-export load --source sqlite --dsn market.db --path ./data/prices --forward-fill
package commands
