package fsops

// Deleter removes a filesystem path.
// Implementations return an error for any filesystem-level failure, including a missing path.
type Deleter interface {
	Delete(path string) error
}

// DeleterFunc adapts a plain function to Deleter
type DeleterFunc func(path string) error

func (f DeleterFunc) Delete(path string) error {
	return f(path)
}
