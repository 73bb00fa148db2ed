package v1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pontoweb/auth-service/internal/core/domain"
	"github.com/pontoweb/auth-service/internal/localsession"
	"github.com/pontoweb/auth-service/internal/password"
	"github.com/pontoweb/auth-service/internal/token"
)

// ---- fakes ----

type fakeUserRepo struct {
	rows map[string]domain.UserRow

	getErr    error
	existsErr error
	createErr error
	updateErr error

	lastLoginIDs []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{rows: map[string]domain.UserRow{}}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.UserRow, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeUserRepo) CreateIfAbsent(ctx context.Context, row domain.UserRow) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.rows[row.ID]; ok {
		return false, nil
	}
	row.CreatedAt = time.Now()
	f.rows[row.ID] = row
	return true, nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	f.lastLoginIDs = append(f.lastLoginIDs, id)
	return f.updateErr
}

type fakeSessionRepo struct {
	sessions map[string]domain.SessionRow

	createErr error
	getErr    error
	deleteErr error

	deletedTokens []string
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]domain.SessionRow{}}
}

func (f *fakeSessionRepo) Create(ctx context.Context, userID, tok string, expiresAt time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions[tok] = domain.SessionRow{UserID: userID, Role: domain.RoleAdmin, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeSessionRepo) GetUserByToken(ctx context.Context, tok string) (*domain.SessionRow, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.sessions[tok]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeSessionRepo) DeleteByToken(ctx context.Context, tok string) error {
	f.deletedTokens = append(f.deletedTokens, tok)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.sessions, tok)
	return nil
}

type mapKV struct {
	data map[string]string
}

func newMapKV() *mapKV { return &mapKV{data: map[string]string{}} }

func (m *mapKV) Get(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mapKV) Delete(key string) error {
	delete(m.data, key)
	return nil
}

// ---- helpers ----

func newTestService(t *testing.T, users *fakeUserRepo, sessions *fakeSessionRepo) (*AuthService, *localsession.Store) {
	t.Helper()
	local := localsession.NewStore(newMapKV(), 8*time.Hour)
	svc := NewAuthService(
		users,
		sessions,
		password.NewHasher(bcrypt.MinCost),
		token.NewManager([]byte("test-secret"), 8*time.Hour),
		local,
	)
	return svc, local
}

func seedUser(t *testing.T, users *fakeUserRepo, id, plaintext string, role domain.Role) {
	t.Helper()
	h := password.NewHasher(bcrypt.MinCost)
	digest, err := h.Hash(plaintext)
	require.NoError(t, err)
	users.rows[id] = domain.UserRow{
		ID:           id,
		PasswordHash: digest,
		Role:         role,
		CreatedBy:    id,
		CreatedAt:    time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

// ---- SignIn ----

func TestSignIn_SeededAdminAccount(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, local := newTestService(t, users, sessions)

	resp, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)
	require.Equal(t, "9999", resp.User.ID)
	require.Equal(t, domain.RoleAdmin, resp.User.Role)
	require.NotEmpty(t, resp.Token)

	// Backend session persisted and local cache populated.
	require.Contains(t, sessions.sessions, resp.Token)
	require.True(t, local.IsValid())
	require.Equal(t, resp.Token, local.Token())
	require.Equal(t, []string{"9999"}, users.lastLoginIDs)
}

func TestSignIn_WrongPasswordAndUnknownIDAreIndistinguishable(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, _ := newTestService(t, users, sessions)

	_, errWrongPassword := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "wrong"})
	require.ErrorIs(t, errWrongPassword, ErrInvalidCredentials)

	_, errUnknownID := svc.SignIn(context.Background(), domain.LoginRequest{ID: "0000", Password: "684171"})
	require.ErrorIs(t, errUnknownID, ErrInvalidCredentials)

	// Identical error kind AND message: no user-existence leak.
	require.Equal(t, errWrongPassword.Error(), errUnknownID.Error())
}

func TestSignIn_LookupFailureMapsToInvalidCredentials(t *testing.T) {
	users := newFakeUserRepo()
	users.getErr = errors.New("store unreachable")
	svc, _ := newTestService(t, users, newFakeSessionRepo())

	_, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignIn_BestEffortSideEffectsDoNotFailLogin(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	sessions.createErr = errors.New("session table down")
	users.updateErr = errors.New("update failed")
	svc, local := newTestService(t, users, sessions)

	resp, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)
	require.Equal(t, "9999", resp.User.ID)
	require.True(t, local.IsValid())
}

func TestSignIn_NoLocalStateOnFailure(t *testing.T) {
	users := newFakeUserRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, local := newTestService(t, users, newFakeSessionRepo())

	_, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "wrong"})
	require.Error(t, err)
	require.False(t, local.IsValid())
}

// ---- SignOut ----

func TestSignOut_RevokesRemoteAndClearsLocal(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, local := newTestService(t, users, sessions)

	resp, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)

	svc.SignOut(context.Background())

	require.Equal(t, []string{resp.Token}, sessions.deletedTokens)
	require.False(t, local.IsValid())
}

func TestSignOut_RemoteFailureStillClearsLocal(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, local := newTestService(t, users, sessions)

	_, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)

	sessions.deleteErr = errors.New("network down")
	svc.SignOut(context.Background())

	require.False(t, local.IsValid(), "local state must clear even when remote revoke fails")
}

func TestSignOut_NoActiveSessionIsANoOp(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc, local := newTestService(t, newFakeUserRepo(), sessions)

	svc.SignOut(context.Background())

	require.Empty(t, sessions.deletedTokens)
	require.False(t, local.IsValid())
}

// ---- CurrentSession ----

func TestCurrentSession_BackendConfirmed(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, _ := newTestService(t, users, sessions)

	_, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)

	user := svc.CurrentSession(context.Background())
	require.NotNil(t, user)
	require.Equal(t, "9999", user.ID)
}

func TestCurrentSession_BackendFailureFallsBackToLocal(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, _ := newTestService(t, users, sessions)

	_, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)

	sessions.getErr = errors.New("backend unreachable")

	user := svc.CurrentSession(context.Background())
	require.NotNil(t, user, "backend failure must degrade to the local cache, not to absent")
	require.Equal(t, "9999", user.ID)
}

func TestCurrentSession_BackendRevokedPurgesLocal(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, local := newTestService(t, users, sessions)

	resp, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)

	// Backend drops the session out-of-band.
	delete(sessions.sessions, resp.Token)

	require.Nil(t, svc.CurrentSession(context.Background()))
	require.False(t, local.IsValid(), "revoked session must purge the local cache")
}

func TestCurrentSession_NoSession(t *testing.T) {
	svc, _ := newTestService(t, newFakeUserRepo(), newFakeSessionRepo())
	require.Nil(t, svc.CurrentSession(context.Background()))
}

// ---- SignUp ----

func TestSignUp_CreatesAccount(t *testing.T) {
	users := newFakeUserRepo()
	svc, _ := newTestService(t, users, newFakeSessionRepo())

	user, err := svc.SignUp(context.Background(), domain.RegisterRequest{
		ID:       "1234",
		Password: "segredo1",
		Role:     domain.RoleSupervisor,
	}, "9999")
	require.NoError(t, err)
	require.Equal(t, "1234", user.ID)
	require.Equal(t, domain.RoleSupervisor, user.Role)
	require.Equal(t, "9999", user.CreatedBy)

	// The stored hash verifies against the plaintext and is never the
	// plaintext itself.
	row := users.rows["1234"]
	require.NotEqual(t, "segredo1", row.PasswordHash)
	require.True(t, password.NewHasher(bcrypt.MinCost).Verify("segredo1", row.PasswordHash))
}

func TestSignUp_DuplicateID(t *testing.T) {
	users := newFakeUserRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, _ := newTestService(t, users, newFakeSessionRepo())

	_, err := svc.SignUp(context.Background(), domain.RegisterRequest{
		ID:       "9999",
		Password: "irrelevant",
		Role:     domain.RoleAdmin,
	}, "9999")
	require.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestSignUp_RaceLostAtInsertReportsDuplicate(t *testing.T) {
	users := newFakeUserRepo()
	svc, _ := newTestService(t, users, newFakeSessionRepo())

	// The pre-check misses, but the atomic insert reports a conflict, as a
	// concurrent signup would produce.
	seedAfterCheck := &raceUserRepo{fakeUserRepo: users}
	svc.users = seedAfterCheck

	_, err := svc.SignUp(context.Background(), domain.RegisterRequest{
		ID:       "7777",
		Password: "segredo1",
		Role:     domain.RoleAdmin,
	}, "9999")
	require.ErrorIs(t, err, ErrDuplicateIdentity)
}

// raceUserRepo simulates a signup race: the existence check passes but the
// atomic insert loses to a concurrent writer.
type raceUserRepo struct {
	*fakeUserRepo
}

func (r *raceUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (r *raceUserRepo) CreateIfAbsent(ctx context.Context, row domain.UserRow) (bool, error) {
	return false, nil
}

func TestSignUp_InvalidRole(t *testing.T) {
	svc, _ := newTestService(t, newFakeUserRepo(), newFakeSessionRepo())

	_, err := svc.SignUp(context.Background(), domain.RegisterRequest{
		ID:       "1234",
		Password: "segredo1",
		Role:     "manager",
	}, "9999")
	require.ErrorIs(t, err, ErrInvalidRole)
}

// ---- GetUserByToken ----

func TestGetUserByToken_BackendSession(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	seedUser(t, users, "9999", "684171", domain.RoleAdmin)
	svc, _ := newTestService(t, users, sessions)

	resp, err := svc.SignIn(context.Background(), domain.LoginRequest{ID: "9999", Password: "684171"})
	require.NoError(t, err)

	user, err := svc.GetUserByToken(context.Background(), resp.Token)
	require.NoError(t, err)
	require.Equal(t, "9999", user.ID)
}

func TestGetUserByToken_ForgedSignatureNeverReachesStore(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc, _ := newTestService(t, newFakeUserRepo(), sessions)

	forged, err := token.NewManager([]byte("other-secret"), 8*time.Hour).Generate("9999")
	require.NoError(t, err)
	// A matching session row must not rescue a bad signature.
	sessions.sessions[forged] = domain.SessionRow{
		UserID:    "9999",
		Role:      domain.RoleAdmin,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	_, err = svc.GetUserByToken(context.Background(), forged)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetUserByToken_OwnerMismatchRejected(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc, _ := newTestService(t, newFakeUserRepo(), sessions)

	tok, err := token.NewManager([]byte("test-secret"), 8*time.Hour).Generate("1234")
	require.NoError(t, err)
	sessions.sessions[tok] = domain.SessionRow{
		UserID:    "9999",
		Role:      domain.RoleAdmin,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	_, err = svc.GetUserByToken(context.Background(), tok)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

// ---- stubs ----

func TestPasswordFlowsAreNotImplemented(t *testing.T) {
	svc, _ := newTestService(t, newFakeUserRepo(), newFakeSessionRepo())

	require.ErrorIs(t, svc.ChangePassword(context.Background(), "9999", "old", "new"), ErrNotImplemented)
	require.ErrorIs(t, svc.ResetPassword(context.Background(), "9999"), ErrNotImplemented)
}
