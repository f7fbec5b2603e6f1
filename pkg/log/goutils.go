package log

import (
	"fmt"
	"strings"

	glog "github.com/root4loot/goutils/log"
)

// GoutilsAdapter implements Logger on top of the goutils console logger.
// Fields are appended to the message as key=value pairs.
type GoutilsAdapter struct{}

// NewGoutilsAdapter initialises the goutils logger for app and returns an adapter.
func NewGoutilsAdapter(app string, debug bool) *GoutilsAdapter {
	glog.Init(app)
	if debug {
		glog.SetLevel(glog.DebugLevel)
	} else {
		glog.SetLevel(glog.InfoLevel)
	}
	return &GoutilsAdapter{}
}

// Silence drops everything below fatal.
func (g *GoutilsAdapter) Silence() {
	glog.SetLevel(glog.FatalLevel)
}

func (g *GoutilsAdapter) Debug(msg string, fields ...Field) {
	glog.Debugf("%s%s", msg, formatFields(fields))
}

func (g *GoutilsAdapter) Info(msg string, fields ...Field) {
	glog.Infof("%s%s", msg, formatFields(fields))
}

func (g *GoutilsAdapter) Warn(msg string, fields ...Field) {
	glog.Warnf("%s%s", msg, formatFields(fields))
}

func (g *GoutilsAdapter) Error(msg string, fields ...Field) {
	glog.Errorf("%s%s", msg, formatFields(fields))
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(" ")
		sb.WriteString(f.Key)
		sb.WriteString("=")
		s := fmt.Sprint(f.Value)
		if strings.ContainsAny(s, " \t\"") {
			s = fmt.Sprintf("%q", s)
		}
		sb.WriteString(s)
	}
	return sb.String()
}
