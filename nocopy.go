package zephyr

// noCopy makes go vet's copylocks check flag copies of the structs
// that embed it, such as SpinLock, whose value must stay in one place
// to be shared.
type noCopy struct{}

// Lock is a no-op used by go vet.
func (*noCopy) Lock() {}

// Unlock is a no-op used by go vet.
func (*noCopy) Unlock() {}
