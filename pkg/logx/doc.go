// Package logx configures minerva's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional event sink (min-level + rate limiting) for external log viewers
package logx
