package autologin

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

// CookieResult is a captured login cookie headed for the sinks.
type CookieResult struct {
	Email  string
	Domain string
	Value  string
}

// ResultSink receives each successful login's cookie.
type ResultSink interface {
	Deliver(ctx context.Context, res *CookieResult) error
	Close() error
}

// NewSinks builds the sinks named in the comma-separated spec
// (collector, jsonl, redis, mysql). Unknown names are logged and skipped.
func NewSinks(spec string, cfg SinkConfig) (ResultSink, error) {
	var sinks []ResultSink
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "", "none":
		case "collector":
			if cfg.CollectorURL == "" {
				log.Printf("[sink] collector selected but COLLECTOR_URL empty, skipping")
				continue
			}
			sinks = append(sinks, NewCollectorSink(cfg.CollectorURL))
		case "jsonl":
			sinks = append(sinks, NewJSONLSink(cfg.JSONLPath))
		case "redis":
			s, err := NewRedisSink(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.RedisPrefix)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		case "mysql":
			s, err := NewMySQLSink(cfg.MySQLDSN, cfg.MySQLTable)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		default:
			log.Printf("[sink] unknown sink %q, skipping", name)
		}
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no usable result sinks configured (COOKIES_SINK=%q)", spec)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return multiSink(sinks), nil
}

// SinkConfig carries the settings NewSinks needs.
type SinkConfig struct {
	CollectorURL string
	JSONLPath    string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	RedisPrefix  string
	MySQLDSN     string
	MySQLTable   string
}

type multiSink []ResultSink

func (m multiSink) Deliver(ctx context.Context, res *CookieResult) error {
	var firstErr error
	for _, s := range m {
		if err := s.Deliver(ctx, res); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CollectorSink posts the cookie to the collector endpoint.
type CollectorSink struct {
	url  string
	http *http.Client
}

// NewCollectorSink builds a sink posting to url.
func NewCollectorSink(url string) *CollectorSink {
	return &CollectorSink{url: url, http: &http.Client{Timeout: 15 * time.Second}}
}

func (s *CollectorSink) Deliver(ctx context.Context, res *CookieResult) error {
	payload := map[string]any{
		"cookies":        map[string]string{"j": res.Value},
		"expirationDate": 999999999,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("collector post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector post: status %d", resp.StatusCode)
	}
	log.Printf("[sink] result posted to collector")
	return nil
}

func (s *CollectorSink) Close() error { return nil }

// JSONLSink appends one line per result to a local log file.
type JSONLSink struct {
	path string
}

// NewJSONLSink writes to path, creating parent directories on first use.
func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

type jsonlLine struct {
	Time    string            `json:"time"`
	Email   string            `json:"email"`
	Success bool              `json:"success"`
	Cookies map[string]string `json:"cookies,omitempty"`
}

func (s *JSONLSink) Deliver(ctx context.Context, res *CookieResult) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	line := jsonlLine{
		Time:    time.Now().Format("2006-01-02 15:04:05"),
		Email:   res.Email,
		Success: true,
		Cookies: map[string]string{"j": res.Value},
	}
	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = w.WriteString(string(b) + "\n")
	return err
}

func (s *JSONLSink) Close() error { return nil }

// RedisSink keeps a cookie pool in Redis: a set of ids, a hash per cookie,
// and a usage zset so consumers can pick the least-used entry.
type RedisSink struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSink connects and verifies the Redis server.
func NewRedisSink(addr, password string, db int, prefix string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSink{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisSink) Deliver(ctx context.Context, res *CookieResult) error {
	sum := sha1.Sum([]byte(res.Email + "|" + res.Value))
	id := hex.EncodeToString(sum[:])

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, s.prefix+":ids", id)
	pipe.HSet(ctx, s.prefix+":data:"+id, map[string]any{
		"email":      res.Email,
		"domain":     res.Domain,
		"cookie_j":   res.Value,
		"created_at": time.Now().Unix(),
	})
	pipe.ZAddNX(ctx, s.prefix+":use", redis.Z{Score: 0, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis deliver: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error { return s.rdb.Close() }

// MySQLSink upserts one row per account into a cookie table.
type MySQLSink struct {
	db    *sql.DB
	table string
}

// NewMySQLSink opens the pool and ensures the table exists.
func NewMySQLSink(dsn, table string) (*MySQLSink, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`email` VARCHAR(255) NOT NULL PRIMARY KEY,"+
		"`domain` VARCHAR(255) NOT NULL DEFAULT '',"+
		"`cookie_j` TEXT NOT NULL,"+
		"`updated_at` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP"+
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ddl: %w", err)
	}
	return &MySQLSink{db: db, table: table}, nil
}

func (s *MySQLSink) Deliver(ctx context.Context, res *CookieResult) error {
	q := fmt.Sprintf("INSERT INTO `%s` (email, domain, cookie_j) VALUES (?, ?, ?) "+
		"ON DUPLICATE KEY UPDATE domain=VALUES(domain), cookie_j=VALUES(cookie_j)", s.table)
	if _, err := s.db.ExecContext(ctx, q, res.Email, res.Domain, res.Value); err != nil {
		return fmt.Errorf("mysql deliver: %w", err)
	}
	return nil
}

func (s *MySQLSink) Close() error { return s.db.Close() }
