package logger

import (
	"fmt"
	"log"
	"os"
)

var (
	debugMode = false
	infoLog   = log.New(os.Stdout, "[INFO] ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix)
	debugLog  = log.New(os.Stdout, "[DEBUG] ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix)
	errorLog  = log.New(os.Stderr, "[ERROR] ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix)
)

// SetLevel enables debug output when level is "DEBUG".
func SetLevel(level string) {
	debugMode = level == "DEBUG"
}

func DebugEnabled() bool {
	return debugMode
}

func Info(format string, v ...interface{}) {
	infoLog.Output(2, fmt.Sprintf(format, v...))
}

func Debug(format string, v ...interface{}) {
	if debugMode {
		debugLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Error(format string, v ...interface{}) {
	errorLog.Output(2, fmt.Sprintf(format, v...))
}

// Fatal logs and exits with status 1.
func Fatal(format string, v ...interface{}) {
	errorLog.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}
