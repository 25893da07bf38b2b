package logger

import (
	"path"
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events into this logger.
// Wiring details go to DEBUG; only failures reach ERROR.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates the fx event logger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		hookResult("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuted:
		hookResult("OnStop", e.FunctionName, e.Err)
	case *fxevent.Supplied:
		failedOr(e.Err, "supply of %s failed", e.TypeName)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide %s failed: %v", shortFuncName(e.ConstructorName), e.Err)
			return
		}
		Debugf("fx: %s provides %s", shortFuncName(e.ConstructorName), strings.Join(e.OutputTypeNames, ", "))
	case *fxevent.Invoked:
		failedOr(e.Err, "invoke of %s failed", shortFuncName(e.FunctionName))
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		failedOr(e.Err, "rollback failed")
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
			return
		}
		Debugf("fx: application started")
	case *fxevent.Stopped:
		failedOr(e.Err, "stop failed")
	case *fxevent.LoggerInitialized:
		failedOr(e.Err, "logger %s failed", e.ConstructorName)
	}
}

func hookResult(kind, funcName string, err error) {
	if err != nil {
		Errorf("fx: %s hook %s failed: %v", kind, shortFuncName(funcName), err)
		return
	}
	Debugf("fx: %s hook %s done", kind, shortFuncName(funcName))
}

func failedOr(err error, format string, v ...interface{}) {
	if err != nil {
		Errorf("fx: "+format+": %v", append(v, err)...)
	}
}

// shortFuncName trims the import path and closure suffixes of an fx function name,
// e.g. "github.com/x/app.provideRegistry.func1" becomes "app.provideRegistry".
func shortFuncName(name string) string {
	name = path.Base(name)
	if idx := strings.Index(name, ".func"); idx != -1 {
		name = name[:idx]
	}
	return name
}
