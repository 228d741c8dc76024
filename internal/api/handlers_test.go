package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/user/sinergia/internal/game"
	"github.com/user/sinergia/internal/narrative"
	"github.com/user/sinergia/internal/types"
)

// MockSession is a mock implementation of Session
type MockSession struct {
	mock.Mock
}

func (m *MockSession) StartGame(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) MakeChoice(optionID string, impact types.AmabilityImpact) error {
	return m.Called(optionID, impact).Error(0)
}

func (m *MockSession) AdvanceTo(nodeID string) error {
	return m.Called(nodeID).Error(0)
}

func (m *MockSession) Choose(ctx context.Context, optionID string) error {
	return m.Called(ctx, optionID).Error(0)
}

func (m *MockSession) CompleteCharacter(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) SaveGame(ctx context.Context, slot int) error {
	return m.Called(ctx, slot).Error(0)
}

func (m *MockSession) LoadGame(ctx context.Context, slot int) error {
	return m.Called(ctx, slot).Error(0)
}

func (m *MockSession) DeleteSave(ctx context.Context, slot int) error {
	return m.Called(ctx, slot).Error(0)
}

func (m *MockSession) ListSaves(ctx context.Context) []game.SlotInfo {
	return m.Called(ctx).Get(0).([]game.SlotInfo)
}

func (m *MockSession) ResetGame() error {
	return m.Called().Error(0)
}

func (m *MockSession) View() game.StateView {
	return m.Called().Get(0).(game.StateView)
}

func (m *MockSession) Close() {
	m.Called()
}

func playingView() game.StateView {
	return game.StateView{
		CurrentState:     types.StatusPlaying,
		AmabilityScore:   game.InitialScore(),
		CurrentCharacter: "carlos",
		CurrentNode:      &narrative.ResolvedNode{NodeID: "intro", CharacterName: "Carlos", Options: []types.DialogueOption{}},
	}
}

func newServer(t *testing.T, session *MockSession) (*httptest.Server, *Registry) {
	t.Helper()
	registry := NewRegistry(func() (Session, error) { return session, nil }, RegistryLimits{}, nil)
	r := chi.NewRouter()
	NewHandler(registry, nil).Routes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, registry
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func createSession(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, server.URL+"/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, ok := body["id"].(string)
	require.True(t, ok)
	return id
}

func TestHealth(t *testing.T) {
	server, _ := newServer(t, new(MockSession))
	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndDeleteSession(t *testing.T) {
	// Setup
	session := new(MockSession)
	session.On("View").Return(game.StateView{CurrentState: types.StatusMenu})
	session.On("Close").Return()
	server, registry := newServer(t, session)

	// Test case 1: create
	id := createSession(t, server)
	assert.Equal(t, 1, registry.Len())

	// Test case 2: read it back
	resp, body := do(t, http.MethodGet, server.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "menu", body["currentState"])

	// Test case 3: delete closes it
	resp, _ = do(t, http.MethodDelete, server.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, registry.Len())
	session.AssertCalled(t, "Close")

	// Test case 4: gone
	resp, _ = do(t, http.MethodGet, server.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, server.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSessionFactoryError(t *testing.T) {
	registry := NewRegistry(func() (Session, error) { return nil, errors.New("no rng") }, RegistryLimits{}, nil)
	r := chi.NewRouter()
	NewHandler(registry, nil).Routes(r)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, body := do(t, http.MethodPost, server.URL+"/sessions", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "no rng", body["error"])
}

func TestGameplayRoutes(t *testing.T) {
	// Setup
	session := new(MockSession)
	session.On("View").Return(playingView())
	session.On("StartGame", mock.Anything).Return(nil)
	session.On("Choose", mock.Anything, "honest").Return(nil)
	session.On("MakeChoice", "spin", mock.MatchedBy(func(i types.AmabilityImpact) bool {
		return i.Empathy != nil && *i.Empathy == -5 && i.Trust == nil
	})).Return(nil)
	session.On("AdvanceTo", "intro").Return(nil)
	session.On("CompleteCharacter", mock.Anything).Return(nil)
	session.On("ResetGame").Return(nil)
	server, _ := newServer(t, session)
	base := server.URL + "/sessions/" + createSession(t, server)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"start", http.MethodPost, "/start", ""},
		{"choose", http.MethodPost, "/choose", `{"optionId": "honest"}`},
		{"choice", http.MethodPost, "/choice", `{"optionId": "spin", "amabilityImpact": {"empathy": -5}}`},
		{"advance", http.MethodPost, "/advance", `{"nodeId": "intro"}`},
		{"complete", http.MethodPost, "/complete", ""},
		{"reset", http.MethodPost, "/reset", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, base+tt.path, tt.body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, "playing", body["currentState"])
			assert.Equal(t, "carlos", body["currentCharacter"])
		})
	}
	session.AssertExpectations(t)
}

func TestSaveRoutes(t *testing.T) {
	// Setup
	session := new(MockSession)
	session.On("View").Return(playingView())
	session.On("SaveGame", mock.Anything, 2).Return(nil)
	session.On("LoadGame", mock.Anything, 2).Return(nil)
	session.On("LoadGame", mock.Anything, 1).Return(game.ErrSlotEmpty)
	session.On("DeleteSave", mock.Anything, 2).Return(nil)
	session.On("ListSaves", mock.Anything).Return([]game.SlotInfo{{Slot: 0}, {Slot: 1, Exists: true, Progress: "1/10 characters"}})
	server, _ := newServer(t, session)
	base := server.URL + "/sessions/" + createSession(t, server)

	// Test case 1: save, load, delete
	resp, _ := do(t, http.MethodPut, base+"/saves/2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, base+"/saves/2/load", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, base+"/saves/2", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Test case 2: list
	listResp, err := http.Get(base + "/saves")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var slots []game.SlotInfo
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&slots))
	require.Len(t, slots, 2)
	assert.True(t, slots[1].Exists)
	assert.Equal(t, "1/10 characters", slots[1].Progress)

	// Test case 3: empty slot and a bad slot number
	resp, body := do(t, http.MethodPost, base+"/saves/1/load", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, game.ErrSlotEmpty.Error(), body["error"])

	resp, body = do(t, http.MethodPut, base+"/saves/first", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "slot", body["field"])

	session.AssertExpectations(t)
}

func TestRequestValidation(t *testing.T) {
	session := new(MockSession)
	session.On("View").Return(playingView())
	server, _ := newServer(t, session)
	base := server.URL + "/sessions/" + createSession(t, server)

	resp, body := do(t, http.MethodPost, base+"/choose", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request", body["error"])

	resp, body = do(t, http.MethodPost, base+"/choose", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "optionId", body["field"])

	resp, body = do(t, http.MethodPost, base+"/advance", `{"nodeId": ""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "nodeId", body["field"])

	session.AssertNotCalled(t, "Choose", mock.Anything, mock.Anything)
	session.AssertNotCalled(t, "AdvanceTo", mock.Anything)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrSessionNotFound, http.StatusNotFound},
		{game.ErrSlotEmpty, http.StatusNotFound},
		{fmt.Errorf("%w: x", game.ErrOptionNotFound), http.StatusNotFound},
		{narrative.ErrNodeGated, http.StatusNotFound},
		{fmt.Errorf("%w: 9", game.ErrInvalidSlot), http.StatusBadRequest},
		{game.ErrNotPlaying, http.StatusConflict},
		{game.ErrLoadInProgress, http.StatusConflict},
		{narrative.ErrNoTree, http.StatusConflict},
		{game.ErrSessionClosed, http.StatusGone},
		{ErrTooManySessions, http.StatusServiceUnavailable},
		{&game.ValidationError{Field: "amabilityScore.empathy", Reason: "must be between 0 and 100"}, http.StatusUnprocessableEntity},
		{&narrative.LoadError{TreeID: "x", Err: errors.New("timeout")}, http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestValidationErrorCarriesField(t *testing.T) {
	session := new(MockSession)
	session.On("View").Return(playingView())
	session.On("LoadGame", mock.Anything, 0).Return(&game.ValidationError{Field: "amabilityScore.empathy", Reason: "must be between 0 and 100"})
	server, _ := newServer(t, session)
	base := server.URL + "/sessions/" + createSession(t, server)

	resp, body := do(t, http.MethodPost, base+"/saves/0/load", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "amabilityScore.empathy", body["field"])
}

func TestRegistry(t *testing.T) {
	count := 0
	registry := NewRegistry(func() (Session, error) {
		count++
		s := new(MockSession)
		s.On("Close").Return()
		return s, nil
	}, RegistryLimits{}, nil)

	a, _, err := registry.Create()
	require.NoError(t, err)
	b, _, err := registry.Create()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, count)

	got, err := registry.Get(a)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = registry.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	registry.CloseAll()
	assert.Equal(t, 0, registry.Len())
	got.(*MockSession).AssertCalled(t, "Close")
}

func closableFactory(created *[]*MockSession) SessionFactory {
	return func() (Session, error) {
		s := new(MockSession)
		s.On("Close").Return()
		s.On("View").Return(game.StateView{CurrentState: types.StatusMenu})
		*created = append(*created, s)
		return s, nil
	}
}

func TestRegistrySessionCap(t *testing.T) {
	// Setup
	var created []*MockSession
	registry := NewRegistry(closableFactory(&created), RegistryLimits{MaxSessions: 2}, nil)

	// Test case 1: creation stops at the cap without building a session
	a, _, err := registry.Create()
	require.NoError(t, err)
	_, _, err = registry.Create()
	require.NoError(t, err)
	_, _, err = registry.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Len(t, created, 2)
	assert.Equal(t, 2, registry.Len())

	// Test case 2: deleting frees a slot
	require.NoError(t, registry.Delete(a))
	_, _, err = registry.Create()
	assert.NoError(t, err)
}

func TestRegistryEvictsIdleSessions(t *testing.T) {
	// Setup
	var created []*MockSession
	registry := NewRegistry(closableFactory(&created), RegistryLimits{MaxSessions: 2, IdleTimeout: time.Minute}, nil)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return clock }

	stale, _, err := registry.Create()
	require.NoError(t, err)
	active, _, err := registry.Create()
	require.NoError(t, err)

	// Test case 1: a lookup keeps a session alive
	clock = clock.Add(40 * time.Second)
	_, err = registry.Get(active)
	require.NoError(t, err)

	// Test case 2: only the idle session is evicted and closed
	clock = clock.Add(30 * time.Second)
	assert.Equal(t, 1, registry.EvictIdle())
	assert.Equal(t, 1, registry.Len())
	created[0].AssertCalled(t, "Close")
	created[1].AssertNotCalled(t, "Close")
	_, err = registry.Get(stale)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Test case 3: an expired session is dropped on lookup
	clock = clock.Add(2 * time.Minute)
	_, err = registry.Get(active)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	created[1].AssertCalled(t, "Close")
	assert.Equal(t, 0, registry.Len())

	// Test case 4: a full registry of idle sessions makes room for a new one
	_, _, err = registry.Create()
	require.NoError(t, err)
	_, _, err = registry.Create()
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	_, _, err = registry.Create()
	assert.NoError(t, err)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistryJanitorStopsWithContext(t *testing.T) {
	var created []*MockSession
	registry := NewRegistry(closableFactory(&created), RegistryLimits{IdleTimeout: time.Millisecond}, nil)
	_, _, err := registry.Create()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		registry.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return registry.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestCreateSessionWhenFull(t *testing.T) {
	var created []*MockSession
	registry := NewRegistry(closableFactory(&created), RegistryLimits{MaxSessions: 1}, nil)
	r := chi.NewRouter()
	NewHandler(registry, nil).Routes(r)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, _ := do(t, http.MethodPost, server.URL+"/sessions", "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, http.MethodPost, server.URL+"/sessions", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, ErrTooManySessions.Error(), body["error"])
}
