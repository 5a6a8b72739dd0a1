// Package datasource provides the indicator values exports are built from.
//
// Sources answer ValueAt(indicator, date) and optionally Range for a whole
// span. Implementations cover an in-memory map, a directory of stooq-style
// daily CSV files, an Excel workbook and the assets/market_data tables in
// Postgres or SQLite. File feeds go through Clean, optional ForwardFill and
// optional Base100 when loaded.
//
// CachedSource adds a TTL cache with request coalescing; Watcher reloads
// file feeds when they change on disk.
package datasource
