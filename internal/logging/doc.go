// Package logging provides structured logging with correlation ID support for the camera engine.
//
// It wraps logrus with component tagging, correlation-id propagation via
// context.Context, and file rotation through lumberjack. GetLogger hands
// out one shared *Logger per component name, built from the global logger
// factory's configuration when first requested. ConfigureFactory affects
// only loggers created after it runs; SetupLogging reconfigures the
// "engine" logger alone.
//
// Field conventions:
//   - "component": subsystem name (e.g. "device-session", "tally-router")
//   - "correlation_id": request/command id for tracing across the engine
//   - "device_id": device correlation key, when the log line concerns one device
package logging
