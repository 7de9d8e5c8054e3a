package application

// Recorder receives domain events for metrics.
type Recorder interface {
	SessionStarted()
	SessionCompleted(auto bool)
	SessionForfeited()
	PaymentSettled(source string)
	RanksRecomputed(users int)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()       {}
func (nopRecorder) SessionCompleted(bool) {}
func (nopRecorder) SessionForfeited()     {}
func (nopRecorder) PaymentSettled(string) {}
func (nopRecorder) RanksRecomputed(int)   {}

func defaultRecorder(r Recorder) Recorder {
	if r != nil {
		return r
	}
	return nopRecorder{}
}
