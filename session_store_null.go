package notebook

import "context"

// NullSessionStore is a no-op implementation
type NullSessionStore struct{}

func NewNullSessionStore() *NullSessionStore {
	return &NullSessionStore{}
}

func (s *NullSessionStore) SaveSnapshot(ctx context.Context, snapshot *SessionSnapshot) error {
	return nil
}

func (s *NullSessionStore) LoadSnapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	return nil, nil
}

func (s *NullSessionStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return nil
}
