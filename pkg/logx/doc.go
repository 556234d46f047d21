// Package logx configures sponsorsync's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// The Service supports hot-swapping sinks/levels on config reload without
// replacing Logger values already handed out.
package logx
