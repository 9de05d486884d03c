package config

type StorageConfig interface {
	GetStorePath() string
	// GetStoreKey returns the decoded sealing key, or nil when values are stored in the clear.
	GetStoreKey() []byte
}

type Storage struct {
	v *Values
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorePath() string {
	return s.v.StorePath
}

func (s Storage) GetStoreKey() []byte {
	if s.v.StoreKey == "" {
		return nil
	}
	key, err := decodeKey(s.v.StoreKey)
	if err != nil {
		return nil
	}
	return key
}
