// Package dispatcher implements the per-connection command protocol: it
// parses one inbound line at a time, authorizes it against session state and
// routes it to the credential store, the connection registry or the
// execution engine.
package dispatcher

import (
	"context"
	"errors"
	"strings"

	"chat_terminal/internal/executor"
	"chat_terminal/internal/hub"
	"chat_terminal/internal/logger"
	"chat_terminal/internal/protocol"
	"chat_terminal/internal/service"
)

// Runner executes untrusted source files; satisfied by *executor.Engine.
type Runner interface {
	Execute(ctx context.Context, req executor.Request) executor.Result
}

// FileStore is the slice of the upload store the protocol needs: listing
// names and resolving a stored name to a server-side path.
type FileStore interface {
	List() ([]string, error)
	Path(name string) (string, error)
}

const helpText = `available commands:
/help : show this help
/register <user> <pass> [email] : create an account
/login <user> <pass> : authenticate this connection
/logout : end the session
/users : list connected users
/ping : liveness check
/msg <user> <message> : send a private message
/send <path> : upload a file (POST /upload)
/files : list files stored on the server
/download <name> : download a file (GET /files/<name>)
/run <lang> <file> [args...] : execute a source file
/quit : close the connection`

// Dispatcher owns no connection state of its own; each connection carries a
// Session and feeds its lines through Handle.
type Dispatcher struct {
	auth     service.Authorization
	registry *hub.Registry
	runner   Runner
	files    FileStore
	log      *logger.Logger
}

func New(auth service.Authorization, registry *hub.Registry, runner Runner, files FileStore, log *logger.Logger) *Dispatcher {
	return &Dispatcher{auth: auth, registry: registry, runner: runner, files: files, log: log}
}

// Session is the per-connection protocol state: unauthenticated until a
// /login succeeds on this connection.
type Session struct {
	conn     hub.Conn
	username string
	token    string
}

func NewSession(conn hub.Conn) *Session {
	return &Session{conn: conn}
}

func (s *Session) authenticated() bool { return s.username != "" }

// Username returns the bound username, empty while unauthenticated.
func (s *Session) Username() string { return s.username }

// Handle processes one inbound line and returns true when the connection
// should be closed (/quit). Errors never escape: every failure is reported
// to the offending sender only.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	if !strings.HasPrefix(trimmed, "/") {
		d.chat(s, trimmed)
		return false
	}

	fields := strings.Fields(trimmed)
	command := strings.ToLower(fields[0])

	switch command {
	case "/help":
		d.reply(s, protocol.Info(helpText))
	case "/register":
		d.register(s, fields)
	case "/login":
		d.login(s, fields)
	case "/logout":
		d.logout(s)
	case "/users":
		d.users(s)
	case "/ping":
		d.reply(s, protocol.Info("pong"))
	case "/msg":
		d.privateMessage(s, trimmed, fields)
	case "/files":
		d.listFiles(s)
	case "/send":
		d.send(s, fields)
	case "/download":
		d.download(s, fields)
	case "/run":
		d.run(ctx, s, fields)
	case "/quit":
		d.reply(s, protocol.Info("bye"))
		return true
	default:
		d.reply(s, protocol.Errorf("unknown command: %s", command))
	}
	return false
}

// HangUp releases everything the session holds in the registry. Safe to call
// more than once; the registry tolerates repeated removal.
func (d *Dispatcher) HangUp(s *Session) {
	d.registry.Unregister(s.conn)
}

// reply delivers to the session's own connection, unregistering it if dead.
func (d *Dispatcher) reply(s *Session, m protocol.Message) {
	d.registry.SendTo(s.conn, m)
}

func (d *Dispatcher) requireAuth(s *Session) bool {
	if s.authenticated() {
		return true
	}
	d.reply(s, protocol.Error("must be logged in, use /login <user> <pass>"))
	return false
}

func (d *Dispatcher) chat(s *Session, text string) {
	if !d.requireAuth(s) {
		return
	}
	d.reply(s, protocol.You(s.username, text))
	d.registry.Broadcast(protocol.Peer(s.username, text), s.conn)
}

func (d *Dispatcher) register(s *Session, fields []string) {
	if len(fields) < 3 {
		d.reply(s, protocol.Error("usage: /register <user> <pass> [email]"))
		return
	}
	username, password := fields[1], fields[2]
	email := ""
	if len(fields) >= 4 {
		email = fields[3]
	}

	err := d.auth.Register(username, password, email)
	switch {
	case err == nil:
		d.reply(s, protocol.Infof("account created: %s", username))
	case errors.Is(err, service.ErrUsernameTaken):
		d.reply(s, protocol.Errorf("username already taken: %s", username))
	default:
		d.serverError(s, "register", err)
	}
}

func (d *Dispatcher) login(s *Session, fields []string) {
	if len(fields) < 3 {
		d.reply(s, protocol.Error("usage: /login <user> <pass>"))
		return
	}
	username, password := fields[1], fields[2]

	token, err := d.auth.Login(username, password)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidCredentials):
		d.reply(s, protocol.Error("bad credentials"))
		return
	default:
		d.serverError(s, "login", err)
		return
	}

	// A re-login on an already bound connection swaps the binding.
	s.username = username
	s.token = token
	d.registry.Bind(s.conn, username)
	d.reply(s, protocol.Infof("connected as %s", username))
}

func (d *Dispatcher) logout(s *Session) {
	if !d.requireAuth(s) {
		return
	}
	if err := d.auth.Logout(s.token); err != nil {
		d.serverError(s, "logout", err)
		return
	}
	d.registry.Unbind(s.conn)
	s.username = ""
	s.token = ""
	d.reply(s, protocol.Info("logged out"))
}

func (d *Dispatcher) users(s *Session) {
	if !d.requireAuth(s) {
		return
	}
	names := d.registry.Usernames()
	if len(names) == 0 {
		d.reply(s, protocol.Info("no users connected"))
		return
	}
	d.reply(s, protocol.Infof("connected users: %s", strings.Join(names, ", ")))
}

func (d *Dispatcher) privateMessage(s *Session, raw string, fields []string) {
	if !d.requireAuth(s) {
		return
	}
	if len(fields) < 3 {
		d.reply(s, protocol.Error("usage: /msg <user> <message>"))
		return
	}
	recipient := fields[1]
	// Keep the message body intact, internal whitespace included. The body
	// must be cut on the same whitespace class the arity check split on, or
	// a tab between command words would defeat the guard.
	content := commandBody(raw, 2)

	targets := d.registry.ConnectionsFor(recipient)
	if len(targets) == 0 {
		d.reply(s, protocol.Errorf("user '%s' not connected", recipient))
		return
	}
	for _, c := range targets {
		d.registry.SendTo(c, protocol.PM(s.username, content))
	}
	d.reply(s, protocol.PMSent(recipient, content))
}

func (d *Dispatcher) listFiles(s *Session) {
	if !d.requireAuth(s) {
		return
	}
	names, err := d.files.List()
	if err != nil {
		d.serverError(s, "list files", err)
		return
	}
	if len(names) == 0 {
		d.reply(s, protocol.Info("no files stored"))
		return
	}
	d.reply(s, protocol.Infof("files: %s", strings.Join(names, ", ")))
}

func (d *Dispatcher) send(s *Session, fields []string) {
	if !d.requireAuth(s) {
		return
	}
	if len(fields) < 2 {
		d.reply(s, protocol.Error("usage: /send <path>"))
		return
	}
	d.reply(s, protocol.Infof("upload %s with POST /upload", fields[1]))
}

func (d *Dispatcher) download(s *Session, fields []string) {
	if !d.requireAuth(s) {
		return
	}
	if len(fields) < 2 {
		d.reply(s, protocol.Error("usage: /download <name> [dir]"))
		return
	}
	name := fields[1]
	if _, err := d.files.Path(name); err != nil {
		d.reply(s, protocol.Errorf("no such file: %s", name))
		return
	}
	d.reply(s, protocol.Infof("download %s with GET /files/%s", name, name))
}

func (d *Dispatcher) run(ctx context.Context, s *Session, fields []string) {
	if !d.requireAuth(s) {
		return
	}
	if len(fields) < 3 {
		d.reply(s, protocol.Error("usage: /run <lang> <file> [args...]"))
		return
	}
	lang, file := fields[1], fields[2]

	// Uploaded files are addressed by their stored name; anything else is
	// handed to the engine as-is and fails its existence check there.
	source := file
	if resolved, err := d.files.Path(file); err == nil {
		source = resolved
	}

	res := d.runner.Execute(ctx, executor.Request{
		Language:   lang,
		SourcePath: source,
		Args:       fields[3:],
	})

	for _, line := range splitOutput(res.Stdout) {
		d.reply(s, protocol.RunOut(lang, line))
	}
	for _, line := range splitOutput(res.Stderr) {
		d.reply(s, protocol.RunErr(lang, line))
	}
	d.reply(s, protocol.Infof("exit code %d", res.ExitCode))
}

// serverError reports a generic failure to the sender and logs the cause;
// store errors never crash the dispatching task or leak detail to the peer.
func (d *Dispatcher) serverError(s *Session, op string, err error) {
	if d.log != nil {
		d.log.Errorw("command failed", "op", op, "conn", s.conn.ID(), "err", err)
	}
	d.reply(s, protocol.Error("server error, try again later"))
}

// commandBody returns the text of line after its first n whitespace-separated
// words, with the body's own internal whitespace intact. Empty when the line
// has no body.
func commandBody(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		cut := strings.IndexAny(rest, " \t")
		if cut < 0 {
			return ""
		}
		rest = rest[cut:]
	}
	return strings.TrimLeft(rest, " \t")
}

// splitOutput turns captured process output into wire lines, dropping a
// single trailing newline so empty output produces no messages.
func splitOutput(out string) []string {
	out = strings.TrimSuffix(out, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
