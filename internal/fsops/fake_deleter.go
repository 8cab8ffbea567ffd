package fsops

import "sync"

// FakeDeleter implements Deleter for testing
// Records all delete calls without performing actual deletions
type FakeDeleter struct {
	mu    sync.Mutex
	calls []string

	// Err, when set, is returned for every call
	Err error
}

func (f *FakeDeleter) Delete(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	return f.Err
}

// Calls returns a copy of the recorded paths in call order
func (f *FakeDeleter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}
