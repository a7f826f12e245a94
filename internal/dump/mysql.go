// Package dump produces compressed logical exports of single MySQL
// databases via mysqldump.
package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/kebairia/sqlbak/internal/logger"
)

// ErrDumpFailed wraps every mysqldump failure.
var ErrDumpFailed = errors.New("dump failed")

// mysqldumpBin is resolved once by Preflight and invoked per database.
const mysqldumpBin = "mysqldump"

// Option overrides default settings on a Producer.
type Option func(*Producer)

// Producer holds the connection settings shared by all dumps of one run.
type Producer struct {
	Host     string
	Port     string
	Username string
	Password string
	Logger   logger.Logger
}

// NewProducer returns a Producer with the given overrides applied.
func NewProducer(opts ...Option) *Producer {
	p := &Producer{
		Host:   "localhost",
		Port:   "3306",
		Logger: logger.Global(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithHost overrides the server host.
func WithHost(host string) Option {
	return func(p *Producer) {
		if host != "" {
			p.Host = host
		}
	}
}

// WithPort overrides the server port.
func WithPort(port string) Option {
	return func(p *Producer) {
		if port != "" {
			p.Port = port
		}
	}
}

// WithCredentials sets username and password.
func WithCredentials(user, pass string) Option {
	return func(p *Producer) {
		if user != "" {
			p.Username = user
		}
		if pass != "" {
			p.Password = pass
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Producer) {
		if log != nil {
			p.Logger = log
		}
	}
}

// Preflight verifies mysqldump is available. A missing binary is fatal to
// the whole run, checked before any database is touched.
func Preflight() error {
	if _, err := exec.LookPath(mysqldumpBin); err != nil {
		return fmt.Errorf("mysqldump not found in PATH: %w", err)
	}
	return nil
}

// args builds the mysqldump invocation for one database. The export is a
// consistent snapshot (--single-transaction) and carries stored routines,
// triggers and events.
func (p *Producer) args(database string) []string {
	return []string{
		"-h", p.Host,
		"-P", p.Port,
		"-u", p.Username,
		"--single-transaction",
		"--quick",
		"--routines",
		"--triggers",
		"--events",
		database,
	}
}

// Dump exports one database into destPath as a gzip-compressed SQL stream.
// mysqldump stdout is piped straight through the compressor, so at no point
// does an uncompressed copy land on disk. The partially written file is
// removed on failure.
func (p *Producer) Dump(ctx context.Context, database, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", ErrDumpFailed, destPath, err)
	}

	gz := gzip.NewWriter(out)

	cmd := exec.CommandContext(ctx, mysqldumpBin, p.args(database)...)
	// MYSQL_PWD keeps the password off the process argument list.
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+p.Password)
	cmd.Stdout = gz
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.Logger.Info("dump started", "database", database, "path", destPath)
	start := time.Now()

	runErr := cmd.Run()
	if err := gz.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush compressor: %w", err)
	}
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close %q: %w", destPath, err)
	}

	if runErr != nil {
		_ = os.Remove(destPath)
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("%w: %s: %v (%s)", ErrDumpFailed, database, runErr, lastLine(detail))
		}
		return fmt.Errorf("%w: %s: %v", ErrDumpFailed, database, runErr)
	}

	p.Logger.Info("dump completed", "database", database, "duration", time.Since(start).String())
	return nil
}

// lastLine keeps error output readable; mysqldump prefixes its diagnostics
// with warnings the final line summarizes.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
