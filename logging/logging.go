// Package logging provides the shared structured logger for every ccrpc
// package. The framework never configures log output itself (logging setup
// is out of scope, per spec); it only emits through this logger so a host
// process can redirect or reformat output by replacing logrus' standard
// configuration.
package logging

import "github.com/sirupsen/logrus"

// Log is the package-wide logger. Server dispatch, transport errors, and
// lifecycle transitions all log through it with structured fields rather
// than formatted strings.
var Log = logrus.StandardLogger()
