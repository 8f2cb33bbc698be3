package resilience

import "time"

const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Translation backend: public LibreTranslate mirrors flap, so trip early
	// and probe again soon. While open, the cache falls back to source text.
	TranslationThreshold         = 3
	TranslationResetTimeout      = 10 * time.Second
	TranslationHalfOpenSuccesses = 1

	// Remote OCR: a local sidecar, tolerate more noise before failing fast.
	RecognitionThreshold         = 10
	RecognitionResetTimeout      = 5 * time.Second
	RecognitionHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // appears in state-change logs
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

func DefaultConfig() Config {
	return Config{
		Name:              "default",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// TranslationConfig guards the HTTP translation backend.
func TranslationConfig() Config {
	return Config{
		Name:              "translate",
		Threshold:         TranslationThreshold,
		ResetTimeout:      TranslationResetTimeout,
		HalfOpenSuccesses: TranslationHalfOpenSuccesses,
	}
}

// RecognitionConfig guards the remote OCR service.
func RecognitionConfig() Config {
	return Config{
		Name:              "ocr",
		Threshold:         RecognitionThreshold,
		ResetTimeout:      RecognitionResetTimeout,
		HalfOpenSuccesses: RecognitionHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
