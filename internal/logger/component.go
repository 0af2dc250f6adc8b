package logger

// LevelSource supplies per-component log levels. Implemented by the logging
// section of the configuration; kept as an interface here to avoid importing
// the config package.
type LevelSource interface {
	GetComponentLevel(component string) string
	IsDevelopment() bool
}

// NewComponentLoggerFromConfig builds a child logger for a component using the
// configured per-component level. A nil source falls back to the default
// logger.
func NewComponentLoggerFromConfig(component string, src LevelSource) *Logger {
	if src == nil {
		return GetDefaultLogger().WithComponent(component)
	}

	l, err := NewLogger(src.GetComponentLevel(component), src.IsDevelopment())
	if err != nil {
		l = GetDefaultLogger()
	}
	return l.WithComponent(component)
}
