package log

// Discard returns a no-op Logger that drops every message. It is the
// default used by every hermesmq component when no logger is injected at
// construction.
func Discard() Logger {
	return discard{}
}

type discard struct{}

func (discard) Debug(args ...interface{})                    {}
func (discard) Debugf(format string, args ...interface{})    {}
func (discard) Info(args ...interface{})                     {}
func (discard) Infof(format string, args ...interface{})     {}
func (discard) Warning(args ...interface{})                  {}
func (discard) Warningf(format string, args ...interface{})  {}
func (discard) Error(args ...interface{})                    {}
func (discard) Errorf(format string, args ...interface{})    {}
func (discard) Panic(args ...interface{})                    {}
func (discard) Panicf(format string, args ...interface{})    {}
func (discard) Fatal(args ...interface{})                    {}
func (discard) Fatalf(format string, args ...interface{})    {}
func (discard) WithFields(fields Fields) Logger              { return discard{} }
func (discard) WithField(key string, value interface{}) Logger {
	return discard{}
}
func (discard) Sub(tags Fields) Logger                      { return discard{} }
func (discard) SetLevel(lvl Level)                          {}
func (discard) Print(level Level, args ...interface{})      {}
func (discard) Printf(level Level, format string, args ...interface{}) {}
