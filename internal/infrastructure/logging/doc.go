// Package logging is the controller's slog setup. Every package that
// logs declares its own small Logger interface; the *Logger built here
// satisfies all of them through the embedded slog methods, so wiring is
// one SetLogger call per component.
//
// Configuration comes from config.yaml:
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "json"   # json for collectors, text for a terminal
//	  output: "stdout" # stdout or stderr
//
// Records carry service and version attributes, plus whatever a child
// logger added through With. Secrets never go into log fields; the MQTT
// and InfluxDB configs hold credentials and are logged only by URL.
package logging
