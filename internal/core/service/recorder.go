package service

// Recorder receives service-level events for metrics.
type Recorder interface {
	// SecretOperation records a secret load, create or rotate with its result.
	SecretOperation(op, result string)

	LinkCreated()
	LinkRevoked()
	LinkExtended()

	// Authorization records the outcome of a preview token check.
	Authorization(result string)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) SecretOperation(string, string) {}
func (NopRecorder) LinkCreated()                   {}
func (NopRecorder) LinkRevoked()                   {}
func (NopRecorder) LinkExtended()                  {}
func (NopRecorder) Authorization(string)           {}
