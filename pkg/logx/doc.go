// Package logx configures chime's structured logging.
//
// It is a small wrapper on top of zerolog that keeps console output
// readable (short timestamp + short caller) while an optional file sink
// stays JSON-structured. The zero value of Logger is a safe no-op, so
// components can hold a Logger field without nil checks.
package logx
