/*
Package log provides structured logging for the router using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
context-carrying child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("ioservice")                │          │
	│  │  - WithNode("10.0.0.1:11210")                │          │
	│  │  - WithBucket("default")                     │          │
	│  │  - WithService("query")                      │          │
	│  │  - WithOperation(opcode, opaque)              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │  JSON: {"level":"info","node":"10.0.0.1:11210", │      │
	│  │         "time":"...","message":"..."}        │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every package in the module
  - Thread-safe concurrent writes

Log Levels:
  - Debug: wire-level tracing (frame bytes, retry backoff ticks)
  - Info: lifecycle events (pool warm-up, topology reconfig, node quarantine)
  - Warn: degraded-but-recovering conditions (URI marked unhealthy, node down)
  - Error: operation failures (dispatch error, auth failure, decode error)
  - Fatal: unrecoverable startup errors

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: tag logs with a subsystem name
  - WithNode: tag logs with the target node's endpoint
  - WithBucket: tag logs with the bucket name
  - WithService: tag logs with an HTTP service name (query, fts, ...)
  - WithOperation: tag logs with an in-flight op's opcode/opaque pair

# Usage

Initializing the Logger:

	import "github.com/latticekv/cbcore/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	poolLog := log.WithComponent("connpool")
	poolLog.Info().Msg("pool warmed to min size")

	nodeLog := log.WithNode(node.Endpoint)
	nodeLog.Warn().Int("errors", count).Msg("node exceeded io error threshold")

	opLog := log.WithOperation(opcode, opaque)
	opLog.Debug().Msg("retrying after not-my-vbucket")

Every component (pool, IO service, config provider, HTTP dispatcher)
holds a child logger built from one of these helpers instead of calling
the package logger directly, so its log lines carry node/bucket/opaque
context automatically without repeating it at every call site.

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once at startup,
    reachable from any package without threading it through constructors.

Context Logger Pattern:
  - Child loggers carry fixed fields (node, bucket, opcode) so call
    sites stay short and every line in a given subsystem is consistent.

# Security

  - Never log credentials: SASL passwords and bucket passwords never
    reach a log line, even at Debug level.
  - Use structured fields (.Str, .Uint32) instead of string
    interpolation for any value that originated outside the process.
*/
package log
