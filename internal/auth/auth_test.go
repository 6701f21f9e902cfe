package auth

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.db")
	store, err := OpenFileStore(path)
	require.NoError(t, err)
	return NewService(store, WithCost(bcrypt.MinCost)), store, path
}

func register(user, email, password string) Request {
	return Request{Action: ActionRegister, Username: user, Email: email, Password: password}
}

func login(user, password string) Request {
	return Request{Action: ActionLogin, Username: user, Password: password}
}

// TestRegisterStatus verifies the reply code for each validation rule.
func TestRegisterStatus(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Status
	}{
		{"ok", register("ana", "ana@example.com", "secret"), StatusOK},
		{"empty username", register("", "x@example.com", "secret"), StatusBadUsername},
		{"username with space", register("a b", "x@example.com", "secret"), StatusBadUsername},
		{"username too long", register(strings.Repeat("u", 33), "x@example.com", "secret"), StatusBadUsername},
		{"empty email", register("bo", "", "secret"), StatusBadEmail},
		{"email without at", register("bo", "bo.example.com", "secret"), StatusBadEmail},
		{"email without tld", register("bo", "bo@example", "secret"), StatusBadEmail},
		{"empty password", register("bo", "bo@example.com", ""), StatusBadPassword},
		{"unknown action", Request{Action: "DELETE", Username: "bo"}, StatusBadUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			assert.Equal(t, tt.want, svc.Handle(context.Background(), tt.req))
		})
	}
}

// TestRegisterDuplicate verifies that usernames are unique.
func TestRegisterDuplicate(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	require.Equal(t, StatusOK, svc.Register(ctx, register("ana", "ana@example.com", "secret")))
	assert.Equal(t, StatusBadUsername, svc.Register(ctx, register("ana", "other@example.com", "pw")))
	assert.Equal(t, 1, store.Len())
	assert.ErrorIs(t, store.Add(ctx, Credential{Username: "ana"}), ErrUserExists)
}

// TestLogin verifies login against registered accounts.
func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	require.Equal(t, StatusOK, svc.Register(ctx, register("ana", "ana@example.com", "secret")))

	assert.Equal(t, StatusOK, svc.Handle(ctx, login("ana", "secret")))
	assert.Equal(t, StatusOK, svc.Handle(ctx, Request{Action: "login", Username: "ana", Password: "secret"}))
	assert.Equal(t, StatusBadPassword, svc.Handle(ctx, login("ana", "wrong")))
	assert.Equal(t, StatusBadPassword, svc.Handle(ctx, login("ana", "")))
	assert.Equal(t, StatusBadUsername, svc.Handle(ctx, login("nobody", "secret")))
}

// TestFileStoreReload verifies that accounts survive a reopen and that
// passwords are never stored in clear.
func TestFileStoreReload(t *testing.T) {
	svc, _, path := newTestService(t)
	ctx := context.Background()
	require.Equal(t, StatusOK, svc.Register(ctx, register("ana", "ana@example.com", "secret")))
	require.Equal(t, StatusOK, svc.Register(ctx, register("bo", "bo@example.com", "hunter2")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))
	assert.NotContains(t, string(raw), "hunter2")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	svc2 := NewService(reopened, WithCost(bcrypt.MinCost))
	assert.Equal(t, StatusOK, svc2.Login(ctx, login("bo", "hunter2")))
}

// TestServeOverTCP verifies the one-request wire exchange.
func TestServeOverTCP(t *testing.T) {
	svc, _, _ := newTestService(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- svc.Serve(ctx, ln, time.Second) }()

	addr := ln.Addr().String()
	status, err := Authenticate(ctx, addr, register("ana", "ana@example.com", "secret"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	status, err = Authenticate(ctx, addr, login("ana", "nope"))
	require.NoError(t, err)
	assert.Equal(t, StatusBadPassword, status)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte("{broken\n"))
	require.NoError(t, err)
	reply := make([]byte, 8)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(reply[:n]))
	_ = conn.Close()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("auth server did not stop")
	}
}

// TestParseStatus verifies reply parsing.
func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("2\r\n")
	require.NoError(t, err)
	assert.Equal(t, StatusBadEmail, s)
	assert.Equal(t, "bad email", s.String())

	_, err = ParseStatus("7")
	assert.Error(t, err)
	_, err = ParseStatus("")
	assert.Error(t, err)
	assert.Equal(t, "Status(9)", Status(9).String())
}
