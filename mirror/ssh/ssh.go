package ssh

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/mirrorkeep/mirrorkeep/mirror"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const stagingDir = ".staging"

// SSHMirror talks to a remote POSIX host over an encrypted channel:
// file pushes stream through stdin, everything else is line-oriented
// command output. Pathnames embedded in command lines are single-quoted;
// the enumerator has already rejected any path this cannot round-trip.
type SSHMirror struct {
	location string
	rootDir  string
	client   *ssh.Client
}

func init() {
	mirror.Register("ssh", NewSSHMirror)
}

func NewSSHMirror(location string) (mirror.Channel, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	if parsed.Path == "" || parsed.Path == "/" {
		return nil, fmt.Errorf("ssh mirror needs a remote directory")
	}

	client, err := connect(parsed)
	if err != nil {
		return nil, err
	}
	return &SSHMirror{
		location: location,
		rootDir:  strings.TrimSuffix(parsed.Path, "/"),
		client:   client,
	}, nil
}

func connect(location *url.URL) (*ssh.Client, error) {
	username := location.User.Username()
	if username == "" {
		username = os.Getenv("USER")
	}
	port := location.Port()
	if port == "" {
		port = "22"
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := knownhosts.New(path.Join(homeDir, ".ssh", "known_hosts"))
	if err != nil {
		return nil, err
	}

	var authMethods []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if keyfile := os.Getenv("MIRRORKEEP_SSH_KEY"); keyfile != "" {
		data, err := os.ReadFile(keyfile)
		if err != nil {
			return nil, err
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no usable ssh authentication method")
	}

	return ssh.Dial("tcp", net.JoinHostPort(location.Hostname(), port), &ssh.ClientConfig{
		User:            username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	})
}

func quote(pathname string) string {
	return "'" + pathname + "'"
}

func (m *SSHMirror) run(command string) (string, string, error) {
	session, err := m.client.NewSession()
	if err != nil {
		return "", "", err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	err = session.Run(command)
	return stdout.String(), stderr.String(), err
}

func (m *SSHMirror) Location() string {
	return m.location
}

func (m *SSHMirror) abs(pathname string) string {
	return path.Join(m.rootDir, pathname)
}

func (m *SSHMirror) List() ([]mirror.FileInfo, error) {
	stdout, stderr, err := m.run(fmt.Sprintf("cd %s && find . -type f -not -path './%s/*'", quote(m.rootDir), stagingDir))
	if err != nil {
		return nil, fmt.Errorf("remote list: %w: %s", err, strings.TrimSpace(stderr))
	}

	var out []mirror.FileInfo
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, mirror.FileInfo{Path: strings.TrimPrefix(line, "./"), Size: -1})
	}
	return out, nil
}

func (m *SSHMirror) Exists(pathname string) (bool, error) {
	_, _, err := m.run("test -f " + quote(m.abs(pathname)))
	if err != nil {
		if _, ok := err.(*ssh.ExitError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *SSHMirror) Put(pathname string, rd io.Reader, size int64) error {
	exists, err := m.Exists(pathname)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("refusing to overwrite %s", pathname)
	}

	session, err := m.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	staged := path.Join(m.rootDir, stagingDir, path.Base(pathname)+".part")
	target := m.abs(pathname)

	session.Stdin = rd
	var stderr bytes.Buffer
	session.Stderr = &stderr
	command := fmt.Sprintf("mkdir -p %s %s && cat > %s && mv %s %s",
		quote(path.Join(m.rootDir, stagingDir)),
		quote(path.Dir(target)),
		quote(staged), quote(staged), quote(target))
	if err := session.Run(command); err != nil {
		return fmt.Errorf("remote put %s: %w: %s", pathname, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

type fetchReader struct {
	io.Reader
	session *ssh.Session
}

func (r *fetchReader) Close() error {
	err := r.session.Wait()
	r.session.Close()
	return err
}

func (m *SSHMirror) Fetch(pathname string) (io.ReadCloser, error) {
	session, err := m.client.NewSession()
	if err != nil {
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.Start("cat " + quote(m.abs(pathname))); err != nil {
		session.Close()
		return nil, err
	}
	return &fetchReader{Reader: stdout, session: session}, nil
}

func digestCommand(algorithm string) (string, error) {
	switch algorithm {
	case "sha256":
		return "sha256sum", nil
	default:
		return "", fmt.Errorf("no remote digest tool for algorithm %q", algorithm)
	}
}

func (m *SSHMirror) Digests(algorithm string, pathnames []string) (map[string]string, error) {
	tool, err := digestCommand(algorithm)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(pathnames))
	// Batched so one unreadable file does not void the whole window.
	const batch = 64
	for start := 0; start < len(pathnames); start += batch {
		end := start + batch
		if end > len(pathnames) {
			end = len(pathnames)
		}
		quoted := make([]string, 0, end-start)
		for _, pathname := range pathnames[start:end] {
			quoted = append(quoted, quote(pathname))
		}
		stdout, _, _ := m.run(fmt.Sprintf("cd %s && %s %s", quote(m.rootDir), tool, strings.Join(quoted, " ")))
		for _, line := range strings.Split(stdout, "\n") {
			fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
			if len(fields) != 2 {
				continue
			}
			pathname := strings.TrimPrefix(strings.TrimSpace(fields[1]), "*")
			out[pathname] = strings.ToLower(fields[0])
		}
	}
	return out, nil
}

func (m *SSHMirror) Protect(pathname string) error {
	_, stderr, err := m.run("chmod a-w " + quote(m.abs(pathname)))
	if err != nil {
		return fmt.Errorf("remote protect %s: %w: %s", pathname, err, strings.TrimSpace(stderr))
	}
	return nil
}

func (m *SSHMirror) Capacity() (int, bool, error) {
	stdout, stderr, err := m.run("df -P " + quote(m.rootDir))
	if err != nil {
		return 0, false, fmt.Errorf("remote capacity: %w: %s", err, strings.TrimSpace(stderr))
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) < 2 {
		return 0, false, fmt.Errorf("remote capacity: unparseable df output")
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return 0, false, fmt.Errorf("remote capacity: unparseable df output")
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(fields[4], "%"))
	if err != nil {
		return 0, false, fmt.Errorf("remote capacity: %w", err)
	}
	return percent, true, nil
}

func (m *SSHMirror) Close() error {
	return m.client.Close()
}
