package engine

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

func (e *Engine) logEntry() *logrus.Entry {
	return e.log.WithComponent("scale_engine")
}

func formatFloatPlain(val float64) string {
	formatted := strconv.FormatFloat(val, 'f', 12, 64)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	if formatted == "" || formatted == "-0" {
		return "0"
	}
	return formatted
}
