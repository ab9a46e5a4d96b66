// Package logging configures the process-wide apex/log handler.
package logging

import (
	"io"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/cockroachdb/errors"
)

// Setup installs a handler writing to w. format is "text" or "json".
func Setup(level, format string, w io.Writer) error {
	parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		log.SetHandler(cli.New(w))
	case "json":
		log.SetHandler(jsonhandler.New(w))
	default:
		return errors.Newf("unsupported log format %q", format)
	}

	log.SetLevel(parsed)
	return nil
}
