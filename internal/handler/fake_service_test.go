package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/hub"
	"github.com/weiawesome/babble-live/internal/service"
	"github.com/weiawesome/babble-live/pkg/jwt"
)

// fakeService records calls and returns canned results. Methods not
// overridden panic through the nil embedded interface.
type fakeService struct {
	service.LiveRoomService

	mu       sync.Mutex
	err      error
	unsubErr error
	viewers  int
	calls    calls
}

type calls struct {
	created      *domain.CreateRoomRequest
	enteredBy    string
	removed      string
	left         []string
	published    []string
	subscribed   []string
	disconnected []string
}

func (f *fakeService) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeService) currentErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeService) ListRooms(ctx context.Context) ([]domain.RoomListing, error) {
	if err := f.currentErr(); err != nil {
		return nil, err
	}
	return []domain.RoomListing{{RoomID: "r1", Title: "movie-night", Hashtags: []string{"film", "drama"}}}, nil
}

func (f *fakeService) CreateRoom(ctx context.Context, req *domain.CreateRoomRequest) (*domain.RoomResponse, error) {
	f.mu.Lock()
	f.calls.created = req
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &domain.RoomResponse{ID: "r1", Title: req.Title, JoinCode: "ABCD2345", IsActive: true}, nil
}

func (f *fakeService) EnterRoom(ctx context.Context, userID string, req *domain.EnterRoomRequest) (*domain.RoomResponse, error) {
	f.mu.Lock()
	f.calls.enteredBy = userID
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &domain.RoomResponse{ID: "r1", Title: "movie-night", IsActive: true, ViewerCount: 1}, nil
}

func (f *fakeService) LeaveRoom(ctx context.Context, userID, roomID string) error {
	f.mu.Lock()
	f.calls.left = append(f.calls.left, userID+"@"+roomID)
	err := f.err
	f.mu.Unlock()
	return err
}

func (f *fakeService) CloseRoom(ctx context.Context, userID, roomID string) error {
	return f.currentErr()
}

func (f *fakeService) ViewerCount(ctx context.Context, roomID string) (int, error) {
	if err := f.currentErr(); err != nil {
		return 0, err
	}
	return f.viewers, nil
}

func (f *fakeService) PublishChatMessage(ctx context.Context, userID, roomID, body string) (*domain.RoomEvent, error) {
	f.mu.Lock()
	f.calls.published = append(f.calls.published, body)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e := domain.NewChatMessage(roomID, userID, body)
	e.ID = "01HZX"
	return &e, nil
}

func (f *fakeService) Subscribe(ctx context.Context, sub hub.Subscriber, roomID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.calls.subscribed = append(f.calls.subscribed, sub.UserID()+"@"+roomID)
	return f.viewers, nil
}

// Unsubscribe reports the connection as not attached unless unsubErr is set.
func (f *fakeService) Unsubscribe(ctx context.Context, sub hub.Subscriber, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsubErr != nil {
		return f.unsubErr
	}
	return domain.ErrNotFound
}

func (f *fakeService) Disconnect(ctx context.Context, sub hub.Subscriber) {
	f.mu.Lock()
	f.calls.disconnected = append(f.calls.disconnected, sub.ID())
	f.mu.Unlock()
}

func (f *fakeService) RemoveUserHashtag(ctx context.Context, email, name string) error {
	f.mu.Lock()
	f.calls.removed = email + ":" + name
	err := f.err
	f.mu.Unlock()
	return err
}

func (f *fakeService) snapshot() calls {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.calls
	c.left = append([]string(nil), c.left...)
	c.published = append([]string(nil), c.published...)
	c.subscribed = append([]string(nil), c.subscribed...)
	c.disconnected = append([]string(nil), c.disconnected...)
	return c
}

func newTokenManager(t *testing.T) *jwt.Manager {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jwt.NewManagerWithKey(key, time.Minute, "babble")
}

func issueToken(t *testing.T, m *jwt.Manager, userID string) string {
	t.Helper()
	token, _, err := m.GenerateAccessToken(userID, userID+"@example.com", userID)
	require.NoError(t, err)
	return token
}
