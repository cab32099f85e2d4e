package coap

// Logger is the minimal structured-logging surface the engine needs.
// Callers wire in whatever backend they like (the cmd binaries in this
// module wire in a zap-backed one); a Server constructed without one logs
// nowhere.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
