package log

import (
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

var (
	Info  *log.Logger
	Warn  *log.Logger
	Error *log.Logger
)

func init() {
	Info = log.New(os.Stdout,
		color.GreenString("[INFO] "),
		log.Ldate|log.Ltime|log.Lshortfile)
	Warn = log.New(os.Stdout,
		color.YellowString("[WARN] "),
		log.Ldate|log.Ltime|log.Lshortfile)

	Error = log.New(os.Stderr,
		color.RedString("[ERROR] "),
		log.Ldate|log.Ltime|log.Lshortfile)
}

// SetOutput redirects all levels, e.g. to silence logs in tests.
func SetOutput(w io.Writer) {
	Info.SetOutput(w)
	Warn.SetOutput(w)
	Error.SetOutput(w)
}

// Plain drops the colour codes and dates, for non-terminal output such as
// hosted environments that add their own timestamps.
func Plain() {
	color.NoColor = true
	Info.SetPrefix("[INFO] ")
	Warn.SetPrefix("[WARN] ")
	Error.SetPrefix("[ERROR] ")
	for _, l := range []*log.Logger{Info, Warn, Error} {
		l.SetFlags(log.Lshortfile)
	}
}
