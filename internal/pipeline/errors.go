package pipeline

import "github.com/rotisserie/eris"

// ConfigurationError reports a missing prerequisite, such as the AI API key,
// detected before any lead was touched.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return eris.As(err, &ce)
}
