package token

// Repo is the durable key/value backend behind the Store. Get returns
// errors.ErrNotFound for a missing key.
type Repo interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Entry is a single key/value write.
type Entry struct {
	Key   string
	Value string
}

// BatchRepo is implemented by backends that can apply several writes atomically.
type BatchRepo interface {
	Repo
	SetAll(entries []Entry) error
	DeleteAll(keys []string) error
}
