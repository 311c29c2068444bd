/*
Package log provides structured logging for Katalog using zerolog.

The global Logger is initialized once via Init and component packages
derive scoped child loggers from it (WithComponent, WithChangeset,
WithActor, WithAsset) rather than threading a logger through every
call. Output is either JSON (for log aggregation) or a console writer
(for local development); both carry a timestamp on every line.
*/
package log
