package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"chat_terminal/internal/executor"
	"chat_terminal/internal/hub"
	"chat_terminal/internal/models"
	"chat_terminal/internal/protocol"
	"chat_terminal/internal/service"
)

//
// fakes
//

type fakeConn struct {
	id string

	mu   sync.Mutex
	sent []protocol.Message
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.String()
	}
	return out
}

func (c *fakeConn) last() string {
	lines := c.lines()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

type fakeAuth struct {
	registerFn func(username, password, email string) error
	loginFn    func(username, password string) (string, error)
	logoutFn   func(token string) error
}

func (f *fakeAuth) Register(username, password, email string) error {
	return f.registerFn(username, password, email)
}

func (f *fakeAuth) Login(username, password string) (string, error) {
	return f.loginFn(username, password)
}

func (f *fakeAuth) Logout(token string) error { return f.logoutFn(token) }

func (f *fakeAuth) Verify(string) (*models.User, error)                { return nil, nil }
func (f *fakeAuth) ListUsers(*models.User) ([]models.User, error)      { return nil, nil }
func (f *fakeAuth) DeleteUser(*models.User, string) error              { return nil }
func (f *fakeAuth) EnsureDefaultAdmin(username, password string) error { return nil }

var _ service.Authorization = (*fakeAuth)(nil)

// alwaysAuth accepts any credentials and hands out predictable tokens.
func alwaysAuth() *fakeAuth {
	return &fakeAuth{
		registerFn: func(_, _, _ string) error { return nil },
		loginFn:    func(username, _ string) (string, error) { return "token-" + username, nil },
		logoutFn:   func(string) error { return nil },
	}
}

type fakeRunner struct {
	mu   sync.Mutex
	reqs []executor.Request
	res  executor.Result
}

func (f *fakeRunner) Execute(_ context.Context, req executor.Request) executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.res
}

type fakeFiles struct {
	names   []string
	pathFn  func(name string) (string, error)
	listErr error
}

func (f *fakeFiles) List() ([]string, error) { return f.names, f.listErr }

func (f *fakeFiles) Path(name string) (string, error) {
	if f.pathFn != nil {
		return f.pathFn(name)
	}
	for _, n := range f.names {
		if n == name {
			return "/stored/" + name, nil
		}
	}
	return "", errors.New("no such file")
}

func newTestDispatcher(auth service.Authorization, runner Runner, files FileStore) (*Dispatcher, *hub.Registry) {
	if runner == nil {
		runner = &fakeRunner{}
	}
	if files == nil {
		files = &fakeFiles{}
	}
	registry := hub.NewRegistry(nil)
	return New(auth, registry, runner, files, nil), registry
}

// connSeq makes each fake connection ID unique, matching the uuid-based IDs
// real connections carry; the registry keys connections by ID.
var connSeq atomic.Int64

// connect registers a connection and logs its session in as username.
func connect(t *testing.T, d *Dispatcher, r *hub.Registry, username string) (*fakeConn, *Session) {
	t.Helper()
	conn := newFakeConn(fmt.Sprintf("conn-%s-%d", username, connSeq.Add(1)))
	r.Register(conn)
	sess := NewSession(conn)
	d.Handle(context.Background(), sess, fmt.Sprintf("/login %s pw", username))
	if sess.Username() != username {
		t.Fatalf("login failed, session username = %q", sess.Username())
	}
	conn.mu.Lock()
	conn.sent = nil
	conn.mu.Unlock()
	return conn, sess
}

//
// tests
//

func TestHandle_RequiresLogin(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)
	sess := NewSession(conn)

	for _, line := range []string{"hello everyone", "/users", "/msg bob hi", "/logout", "/files", "/run c prog.c"} {
		d.Handle(context.Background(), sess, line)
	}

	lines := conn.lines()
	if len(lines) != 6 {
		t.Fatalf("got %d replies, want 6: %v", len(lines), lines)
	}
	for i, got := range lines {
		if !strings.Contains(got, "must be logged in") {
			t.Errorf("reply %d = %q, want login-required error", i, got)
		}
	}
	if r.Len() != 1 {
		t.Errorf("registry.Len() = %d, connection should still be registered", r.Len())
	}
}

func TestHandle_EmptyAndBlankLinesIgnored(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)
	sess := NewSession(conn)

	for _, line := range []string{"", "   ", "\t"} {
		if quit := d.Handle(context.Background(), sess, line); quit {
			t.Fatalf("blank line %q requested quit", line)
		}
	}
	if got := conn.lines(); len(got) != 0 {
		t.Errorf("blank input produced replies: %v", got)
	}
}

func TestHandle_LoginBindsConnection(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)
	sess := NewSession(conn)

	d.Handle(context.Background(), sess, "/login alice secret")

	if got := conn.last(); got != "[INFO] connected as alice" {
		t.Errorf("reply = %q", got)
	}
	if got := r.Usernames(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("Usernames() = %v, want [alice]", got)
	}
	if len(r.ConnectionsFor("alice")) != 1 {
		t.Errorf("connection not bound to alice")
	}
}

func TestHandle_LoginBadCredentials(t *testing.T) {
	auth := alwaysAuth()
	auth.loginFn = func(_, _ string) (string, error) { return "", service.ErrInvalidCredentials }
	d, r := newTestDispatcher(auth, nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)
	sess := NewSession(conn)

	d.Handle(context.Background(), sess, "/login alice wrong")

	if got := conn.last(); got != "[ERROR] bad credentials" {
		t.Errorf("reply = %q", got)
	}
	if sess.Username() != "" {
		t.Errorf("session became authenticated on a failed login")
	}
	if len(r.Usernames()) != 0 {
		t.Errorf("failed login bound the connection")
	}
}

func TestHandle_ReloginSwapsBinding(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn, sess := connect(t, d, r, "alice")

	d.Handle(context.Background(), sess, "/login bob pw")

	if got := conn.last(); got != "[INFO] connected as bob" {
		t.Errorf("reply = %q", got)
	}
	if got := r.Usernames(); len(got) != 1 || got[0] != "bob" {
		t.Errorf("Usernames() = %v, want [bob]", got)
	}
	if len(r.ConnectionsFor("alice")) != 0 {
		t.Errorf("stale alice binding survived re-login")
	}
}

func TestHandle_Chat(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	alice, aliceSess := connect(t, d, r, "alice")
	bob, _ := connect(t, d, r, "bob")
	lurker := newFakeConn("lurker")
	r.Register(lurker) // connected but never logged in

	d.Handle(context.Background(), aliceSess, "hello there")

	if got := alice.last(); got != "[you:alice] hello there" {
		t.Errorf("sender echo = %q", got)
	}
	if got := bob.last(); got != "[peer:alice] hello there" {
		t.Errorf("peer copy = %q", got)
	}
	if got := lurker.lines(); len(got) != 1 || got[0] != "[peer:alice] hello there" {
		t.Errorf("unauthenticated listener lines = %v, want the broadcast", got)
	}
	if got := alice.lines(); len(got) != 1 {
		t.Errorf("sender also got the broadcast copy: %v", got)
	}
}

func TestHandle_PrivateMessage(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	alice, aliceSess := connect(t, d, r, "alice")
	bob1, _ := connect(t, d, r, "bob")
	bob2, _ := connect(t, d, r, "bob") // second session, same user
	carol, _ := connect(t, d, r, "carol")

	d.Handle(context.Background(), aliceSess, "/msg bob see you  at   noon")

	want := "[pm:alice] see you  at   noon"
	for i, c := range []*fakeConn{bob1, bob2} {
		if got := c.last(); got != want {
			t.Errorf("bob session %d = %q, want %q", i, got, want)
		}
	}
	if got := alice.last(); got != "[pm-sent:bob] see you  at   noon" {
		t.Errorf("sender ack = %q", got)
	}
	if got := carol.lines(); len(got) != 0 {
		t.Errorf("third party received the PM: %v", got)
	}
}

func TestHandle_PrivateMessageTabSeparated(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	alice, aliceSess := connect(t, d, r, "alice")
	bob, _ := connect(t, d, r, "bob")

	// tabs between the command words satisfy the arity check too, so the
	// body extraction must survive them
	d.Handle(context.Background(), aliceSess, "/msg\tbob\thi there")

	if got := bob.last(); got != "[pm:alice] hi there" {
		t.Errorf("recipient copy = %q", got)
	}
	if got := alice.last(); got != "[pm-sent:bob] hi there" {
		t.Errorf("sender ack = %q", got)
	}
}

func TestHandle_RegisterTabSeparated(t *testing.T) {
	var gotUser, gotEmail string
	auth := alwaysAuth()
	auth.registerFn = func(username, _, email string) error {
		gotUser, gotEmail = username, email
		return nil
	}
	d, r := newTestDispatcher(auth, nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)

	d.Handle(context.Background(), NewSession(conn), "/register\tdave\tpw\tdave@example.com")

	if gotUser != "dave" || gotEmail != "dave@example.com" {
		t.Errorf("registered %q with email %q", gotUser, gotEmail)
	}
	if got := conn.last(); got != "[INFO] account created: dave" {
		t.Errorf("reply = %q", got)
	}
}

func TestCommandBody(t *testing.T) {
	tests := []struct {
		line string
		n    int
		want string
	}{
		{"/msg bob hi", 2, "hi"},
		{"/msg bob see you  at   noon", 2, "see you  at   noon"},
		{"/msg\tbob\thi there", 2, "hi there"},
		{"/msg \t bob \t  spaced out", 2, "spaced out"},
		{"/msg bob", 2, ""},
		{"/msg", 2, ""},
	}
	for _, tt := range tests {
		if got := commandBody(tt.line, tt.n); got != tt.want {
			t.Errorf("commandBody(%q, %d) = %q, want %q", tt.line, tt.n, got, tt.want)
		}
	}
}

func TestHandle_PrivateMessageOffline(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/msg ghost hello")

	if got := alice.last(); got != "[ERROR] user 'ghost' not connected" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_Users(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	alice, aliceSess := connect(t, d, r, "alice")
	connect(t, d, r, "bob")

	d.Handle(context.Background(), aliceSess, "/users")

	if got := alice.last(); got != "[INFO] connected users: alice, bob" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_Register(t *testing.T) {
	tests := []struct {
		name string
		err  error
		line string
		want string
	}{
		{"created", nil, "/register dave pw dave@example.com", "[INFO] account created: dave"},
		{"taken", service.ErrUsernameTaken, "/register dave pw", "[ERROR] username already taken: dave"},
		{"store failure", errors.New("db down"), "/register dave pw", "[ERROR] server error, try again later"},
		{"missing args", nil, "/register dave", "[ERROR] usage: /register <user> <pass> [email]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := alwaysAuth()
			auth.registerFn = func(_, _, _ string) error { return tt.err }
			d, r := newTestDispatcher(auth, nil, nil)
			conn := newFakeConn("c1")
			r.Register(conn)

			d.Handle(context.Background(), NewSession(conn), tt.line)

			if got := conn.last(); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandle_RegisterPassesEmail(t *testing.T) {
	var gotEmail string
	auth := alwaysAuth()
	auth.registerFn = func(_, _, email string) error {
		gotEmail = email
		return nil
	}
	d, r := newTestDispatcher(auth, nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)

	d.Handle(context.Background(), NewSession(conn), "/register dave pw dave@example.com")

	if gotEmail != "dave@example.com" {
		t.Errorf("email = %q", gotEmail)
	}
}

func TestHandle_Logout(t *testing.T) {
	var loggedOut string
	auth := alwaysAuth()
	auth.logoutFn = func(token string) error {
		loggedOut = token
		return nil
	}
	d, r := newTestDispatcher(auth, nil, nil)
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/logout")

	if got := alice.last(); got != "[INFO] logged out" {
		t.Errorf("reply = %q", got)
	}
	if loggedOut != "token-alice" {
		t.Errorf("revoked token = %q, want token-alice", loggedOut)
	}
	if aliceSess.Username() != "" {
		t.Errorf("session still authenticated after logout")
	}
	if len(r.Usernames()) != 0 {
		t.Errorf("binding survived logout: %v", r.Usernames())
	}
	if r.Len() != 1 {
		t.Errorf("logout should leave the connection registered, Len() = %d", r.Len())
	}
}

func TestHandle_Quit(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)
	sess := NewSession(conn)

	quit := d.Handle(context.Background(), sess, "/quit")

	if !quit {
		t.Fatal("Handle did not request quit")
	}
	if got := conn.last(); got != "[INFO] bye" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_Ping(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)

	// liveness works without login
	d.Handle(context.Background(), NewSession(conn), "/ping")

	if got := conn.last(); got != "[INFO] pong" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)

	d.Handle(context.Background(), NewSession(conn), "/frobnicate now")

	if got := conn.last(); got != "[ERROR] unknown command: /frobnicate" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_Help(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	conn := newFakeConn("c1")
	r.Register(conn)

	d.Handle(context.Background(), NewSession(conn), "/help")

	got := conn.last()
	for _, cmd := range []string{"/register", "/login", "/msg", "/run", "/quit"} {
		if !strings.Contains(got, cmd) {
			t.Errorf("help text missing %s", cmd)
		}
	}
}

func TestHandle_Files(t *testing.T) {
	files := &fakeFiles{names: []string{"a.c", "b.sh"}}
	d, r := newTestDispatcher(alwaysAuth(), nil, files)
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/files")

	if got := alice.last(); got != "[INFO] files: a.c, b.sh" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_FilesEmpty(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, &fakeFiles{})
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/files")

	if got := alice.last(); got != "[INFO] no files stored" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_DownloadMissingFile(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, &fakeFiles{})
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/download nope.c")

	if got := alice.last(); got != "[ERROR] no such file: nope.c" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_Run(t *testing.T) {
	runner := &fakeRunner{res: executor.Result{
		ExitCode: 0,
		Stdout:   "line one\nline two\n",
		Stderr:   "warning\n",
	}}
	files := &fakeFiles{names: []string{"prog.c"}}
	d, r := newTestDispatcher(alwaysAuth(), runner, files)
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/run c prog.c --fast")

	want := []string{
		"[run-out:c] line one",
		"[run-out:c] line two",
		"[run-err:c] warning",
		"[INFO] exit code 0",
	}
	got := alice.lines()
	if len(got) != len(want) {
		t.Fatalf("got %d replies %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}

	if len(runner.reqs) != 1 {
		t.Fatalf("runner invoked %d times", len(runner.reqs))
	}
	req := runner.reqs[0]
	if req.Language != "c" {
		t.Errorf("Language = %q", req.Language)
	}
	if req.SourcePath != "/stored/prog.c" {
		t.Errorf("SourcePath = %q, want the resolved stored path", req.SourcePath)
	}
	if len(req.Args) != 1 || req.Args[0] != "--fast" {
		t.Errorf("Args = %v", req.Args)
	}
}

func TestHandle_RunUnstoredPathPassedThrough(t *testing.T) {
	runner := &fakeRunner{res: executor.Result{ExitCode: executor.ExitUsage}}
	d, r := newTestDispatcher(alwaysAuth(), runner, &fakeFiles{})
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/run c /tmp/elsewhere.c")

	if got := runner.reqs[0].SourcePath; got != "/tmp/elsewhere.c" {
		t.Errorf("SourcePath = %q, want the raw argument", got)
	}
	if got := alice.last(); got != "[INFO] exit code 2" {
		t.Errorf("final reply = %q", got)
	}
}

func TestHandle_RunEmptyOutput(t *testing.T) {
	runner := &fakeRunner{res: executor.Result{ExitCode: 0}}
	d, r := newTestDispatcher(alwaysAuth(), runner, &fakeFiles{names: []string{"quiet.sh"}})
	alice, aliceSess := connect(t, d, r, "alice")

	d.Handle(context.Background(), aliceSess, "/run sh quiet.sh")

	got := alice.lines()
	if len(got) != 1 || got[0] != "[INFO] exit code 0" {
		t.Errorf("replies = %v, want only the exit code", got)
	}
}

func TestHandle_UsageErrors(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"/login alice", "[ERROR] usage: /login <user> <pass>"},
		{"/msg bob", "[ERROR] usage: /msg <user> <message>"},
		{"/run c", "[ERROR] usage: /run <lang> <file> [args...]"},
		{"/send", "[ERROR] usage: /send <path>"},
		{"/download", "[ERROR] usage: /download <name> [dir]"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			d, r := newTestDispatcher(alwaysAuth(), nil, nil)
			alice, aliceSess := connect(t, d, r, "alice")

			d.Handle(context.Background(), aliceSess, tt.line)

			if got := alice.last(); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHangUp_ReleasesRegistration(t *testing.T) {
	d, r := newTestDispatcher(alwaysAuth(), nil, nil)
	_, aliceSess := connect(t, d, r, "alice")

	d.HangUp(aliceSess)
	d.HangUp(aliceSess) // repeated hang-up is harmless

	if r.Len() != 0 {
		t.Errorf("Len() = %d after hang-up", r.Len())
	}
	if got := r.Usernames(); len(got) != 0 {
		t.Errorf("Usernames() = %v after hang-up", got)
	}
}
