package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/rollcall/internal/apperror"
	"github.com/keyxmakerx/rollcall/internal/plugins/audit"
	"github.com/keyxmakerx/rollcall/internal/plugins/throttle"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	findByMemberNoFn     func(ctx context.Context, memberNo string, adminOnly bool) (*User, error)
	findByIDFn           func(ctx context.Context, id string) (*User, error)
	updatePasswordHashFn func(ctx context.Context, id, hash string) error
	createFn             func(ctx context.Context, user *User) error
}

func (m *mockUserRepo) FindByMemberNo(ctx context.Context, memberNo string, adminOnly bool) (*User, error) {
	if m.findByMemberNoFn != nil {
		return m.findByMemberNoFn(ctx, memberNo, adminOnly)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if m.updatePasswordHashFn != nil {
		return m.updatePasswordHashFn(ctx, id, hash)
	}
	return nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

// memoryUsers backs mockUserRepo with a map so password changes are visible
// to later lookups.
type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemoryUsers(users ...*User) *memoryUsers {
	m := &memoryUsers{users: make(map[string]*User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryUsers) repo() *mockUserRepo {
	return &mockUserRepo{
		findByMemberNoFn: func(_ context.Context, memberNo string, adminOnly bool) (*User, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			for _, u := range m.users {
				if u.MemberNo == memberNo && (!adminOnly || u.IsAdmin) {
					cp := *u
					return &cp, nil
				}
			}
			return nil, apperror.NewNotFound("user not found")
		},
		findByIDFn: func(_ context.Context, id string) (*User, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			u, ok := m.users[id]
			if !ok {
				return nil, apperror.NewNotFound("user not found")
			}
			cp := *u
			return &cp, nil
		},
		updatePasswordHashFn: func(_ context.Context, id, hash string) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			u, ok := m.users[id]
			if !ok {
				return apperror.NewNotFound("user not found")
			}
			u.PasswordHash = hash
			return nil
		},
		createFn: func(_ context.Context, user *User) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			for _, u := range m.users {
				if u.MemberNo == user.MemberNo {
					return ErrDuplicateMemberNo
				}
			}
			cp := *user
			m.users[user.ID] = &cp
			return nil
		},
	}
}

func (m *memoryUsers) hash(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].PasswordHash
}

// --- Mock Audit ---

type mockAudit struct {
	mu      sync.Mutex
	entries []*audit.AuditEntry
}

func (m *mockAudit) Log(_ context.Context, entry *audit.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAudit) Recent(_ context.Context, _ int) ([]audit.AuditEntry, error) {
	return nil, nil
}

// --- Mock Throttle ---

// brokenThrottle fails every call, standing in for an unreachable store.
type brokenThrottle struct{}

var errThrottleDown = errors.New("throttle store unreachable")

func (brokenThrottle) Check(context.Context, string) (throttle.Status, error) {
	return throttle.Status{}, errThrottleDown
}

func (brokenThrottle) RegisterFailure(context.Context, string) (throttle.Status, error) {
	return throttle.Status{}, errThrottleDown
}

func (brokenThrottle) Reset(context.Context, string) error {
	return errThrottleDown
}

// --- Test Helpers ---

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

const testSigningKey = "test-signing-key-0123456789"

func testHasher() *Hasher {
	return NewHasher(bcrypt.MinCost)
}

func testCodec(t *testing.T) *SessionCodec {
	t.Helper()
	codec, err := NewSessionCodec(testSigningKey, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}
	return codec
}

func mustHash(t *testing.T, secret string) string {
	t.Helper()
	h, err := testHasher().Hash(secret)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	return h
}

// fixture holds a service wired to in-memory collaborators.
type fixture struct {
	svc      AuthService
	users    *memoryUsers
	store    *throttle.MemoryStore
	throttle throttle.ThrottleService
	audit    *mockAudit
	codec    *SessionCodec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := newMemoryUsers(
		&User{ID: "member-1", MemberNo: "99887766", Name: "Ayu", PasswordHash: mustHash(t, "verysecure")},
		&User{ID: "admin-1", MemberNo: "admin12345", Name: "Budi", IsAdmin: true, PasswordHash: mustHash(t, "adminsecret")},
	)
	store := throttle.NewMemoryStore()
	thr := throttle.NewThrottleService(store, throttle.DefaultPolicy())
	aud := &mockAudit{}
	codec := testCodec(t)

	svc, err := NewAuthService(users.repo(), testHasher(), codec, thr, aud)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return &fixture{svc: svc, users: users, store: store, throttle: thr, audit: aud, codec: codec}
}

func adminClaims() *Claims {
	c := &Claims{MemberNo: "admin12345", IsAdmin: true}
	c.Subject = "admin-1"
	return c
}

func memberClaims() *Claims {
	c := &Claims{MemberNo: "99887766"}
	c.Subject = "member-1"
	return c
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A couple of earlier failures must be cleared by the success.
	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "wrongwrong", ClientID: "10.0.0.1"})
		assertAppError(t, err, 401)
	}

	result, err := f.svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "verysecure", ClientID: "10.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := f.codec.Verify(result.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID() != "member-1" || claims.MemberNo != "99887766" || claims.IsAdmin {
		t.Errorf("unexpected claims %+v", claims)
	}
	if result.User.PasswordHash == "" || result.User.ID != "member-1" {
		t.Errorf("expected the stored user in the result, got %+v", result.User)
	}

	status, err := f.throttle.Check(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status.Attempts != 0 || status.Blocked {
		t.Errorf("expected throttle cleared after success, got %+v", status)
	}
}

func TestLogin_UnknownAndWrongSecretLookTheSame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, LoginInput{MemberNo: "00000000", Password: "verysecure", ClientID: "a"})
	_, errWrong := f.svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "notmysecret", ClientID: "b"})

	assertAppError(t, errUnknown, 401)
	assertAppError(t, errWrong, 401)

	var a, b *apperror.AppError
	errors.As(errUnknown, &a)
	errors.As(errWrong, &b)
	if a.Message != b.Message {
		t.Errorf("messages differ: %q vs %q", a.Message, b.Message)
	}

	// Unknown identities still count as failures.
	status, _ := f.throttle.Check(ctx, "a")
	if status.Attempts != 1 {
		t.Errorf("expected unknown identity failure to count, got %d", status.Attempts)
	}
}

func TestLogin_LockoutBlocksCorrectSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := LoginInput{MemberNo: "admin12345", Password: "wrongsecret", AdminRequired: true, ClientID: "10.0.0.9"}

	for i := 1; i <= 5; i++ {
		_, err := f.svc.Login(ctx, in)
		assertAppError(t, err, 401)
	}

	in.Password = "adminsecret"
	_, err := f.svc.Login(ctx, in)
	assertAppError(t, err, 429)

	var appErr *apperror.AppError
	errors.As(err, &appErr)
	if appErr.RetryAfter < 1 || appErr.RetryAfter > 15*60 {
		t.Errorf("expected retry-after within the lockout, got %d", appErr.RetryAfter)
	}

	// Other clients are unaffected.
	in.ClientID = "10.0.0.10"
	if _, err := f.svc.Login(ctx, in); err != nil {
		t.Errorf("expected other client to log in, got %v", err)
	}
}

func TestLogin_LockedClientNeverReachesStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "wrongwrong", ClientID: "c"})
	}

	repo := &mockUserRepo{
		findByMemberNoFn: func(context.Context, string, bool) (*User, error) {
			t.Fatal("storage consulted while locked")
			return nil, nil
		},
	}
	svc, err := NewAuthService(repo, testHasher(), f.codec, f.throttle, nil)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	_, err = svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "verysecure", ClientID: "c"})
	assertAppError(t, err, 429)
}

func TestLogin_AdminEntryRejectsMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{
		MemberNo: "99887766", Password: "verysecure", AdminRequired: true, ClientID: "d",
	})
	assertAppError(t, err, 401)
}

func TestLogin_ValidationRunsBeforeThrottle(t *testing.T) {
	repo := &mockUserRepo{
		findByMemberNoFn: func(context.Context, string, bool) (*User, error) {
			t.Fatal("storage consulted for invalid input")
			return nil, nil
		},
	}
	svc, err := NewAuthService(repo, testHasher(), testCodec(t), brokenThrottle{}, nil)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	tests := []struct {
		name string
		in   LoginInput
	}{
		{"empty member number", LoginInput{MemberNo: "  ", Password: "verysecure"}},
		{"short secret", LoginInput{MemberNo: "99887766", Password: "short"}},
		{"oversized secret", LoginInput{MemberNo: "99887766", Password: string(make([]byte, MaxSecretLength+1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.in)
			assertAppError(t, err, 400)
		})
	}
}

func TestLogin_ThrottleFailureDenies(t *testing.T) {
	f := newFixture(t)
	svc, err := NewAuthService(f.users.repo(), testHasher(), f.codec, brokenThrottle{}, nil)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	_, err = svc.Login(context.Background(), LoginInput{MemberNo: "99887766", Password: "verysecure", ClientID: "e"})
	assertAppError(t, err, 500)
}

func TestLogin_MissingClientSharesUnknownBucket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "wrongwrong"})

	status, err := f.throttle.Check(ctx, unknownClient)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status.Attempts != 1 {
		t.Errorf("expected failure under %q, got %d attempts", unknownClient, status.Attempts)
	}
}

// --- ChangePassword Tests ---

func TestChangePassword_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.ChangePassword(ctx, memberClaims(), "verysecure", "evenmoresecure"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "evenmoresecure", ClientID: "f"}); err != nil {
		t.Errorf("new secret should log in: %v", err)
	}
	_, err := f.svc.Login(ctx, LoginInput{MemberNo: "99887766", Password: "verysecure", ClientID: "f"})
	assertAppError(t, err, 401)
}

func TestChangePassword_WrongCurrentLeavesHash(t *testing.T) {
	f := newFixture(t)
	before := f.users.hash("member-1")

	err := f.svc.ChangePassword(context.Background(), memberClaims(), "notcurrent", "evenmoresecure")
	assertAppError(t, err, 401)

	if f.users.hash("member-1") != before {
		t.Error("stored hash changed after failed verification")
	}
}

func TestChangePassword_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assertAppError(t, f.svc.ChangePassword(ctx, nil, "verysecure", "evenmoresecure"), 401)
	assertAppError(t, f.svc.ChangePassword(ctx, memberClaims(), "", "evenmoresecure"), 400)
	assertAppError(t, f.svc.ChangePassword(ctx, memberClaims(), "verysecure", "short"), 400)
}

// --- ResetPassword Tests ---

func TestResetPassword_AdminWritesAudit(t *testing.T) {
	f := newFixture(t)
	before := f.users.hash("member-1")

	if err := f.svc.ResetPassword(context.Background(), adminClaims(), "member-1", "brandnewsecret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.users.hash("member-1") == before {
		t.Error("expected hash to change")
	}
	if !testHasher().Verify("brandnewsecret", f.users.hash("member-1")) {
		t.Error("stored hash does not verify the new secret")
	}

	if len(f.audit.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(f.audit.entries))
	}
	e := f.audit.entries[0]
	if e.Action != audit.ActionPasswordReset || e.ActorID != "admin-1" || e.ActorName != "Budi" {
		t.Errorf("unexpected audit entry %+v", e)
	}
	if e.Metadata["user_id"] != "member-1" {
		t.Errorf("expected target user in metadata, got %v", e.Metadata)
	}
}

func TestResetPassword_Forbidden(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResetPassword(context.Background(), memberClaims(), "admin-1", "brandnewsecret")
	assertAppError(t, err, 403)
	if len(f.audit.entries) != 0 {
		t.Error("no audit entry expected for a rejected action")
	}
}

func TestResetPassword_UnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResetPassword(context.Background(), adminClaims(), "ghost", "brandnewsecret")
	assertAppError(t, err, 404)
}

// --- CreateUser Tests ---

func TestCreateUser_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.CreateUser(ctx, adminClaims(), CreateUserInput{
		MemberNo: " 11223344 ", Password: "freshsecret", Name: "Citra",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.MemberNo != "11223344" || user.IsAdmin || user.ID == "" {
		t.Errorf("unexpected user %+v", user)
	}
	if user.PasswordHash == "freshsecret" {
		t.Error("secret stored in plaintext")
	}

	if _, err := f.svc.Login(ctx, LoginInput{MemberNo: "11223344", Password: "freshsecret", ClientID: "g"}); err != nil {
		t.Errorf("new account should log in: %v", err)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != audit.ActionUserCreated {
		t.Errorf("expected a user.created audit entry, got %+v", f.audit.entries)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateUser(context.Background(), adminClaims(), CreateUserInput{
		MemberNo: "99887766", Password: "freshsecret",
	})
	assertAppError(t, err, 409)
}

func TestCreateUser_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, nil, CreateUserInput{MemberNo: "1", Password: "freshsecret"})
	assertAppError(t, err, 401)

	_, err = f.svc.CreateUser(ctx, memberClaims(), CreateUserInput{MemberNo: "1", Password: "freshsecret"})
	assertAppError(t, err, 403)
}
