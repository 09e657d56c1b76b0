package signaling

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is an append-only log of opaque records, addressed by key.
type Store interface {
	Append(ctx context.Context, key string, record []byte) error
	// Range returns every record from index from (zero based) to the end.
	Range(ctx context.Context, key string, from int64) ([][]byte, error)
	Len(ctx context.Context, key string) (int64, error)
	Close() error
}

// OpenStore opens a store from a URL:
//
//	memory:              in-process (tests, single-process demos)
//	file:///var/huddle   one msgpack stream file per key under the directory
//	redis://host:6379/0  one Redis list per key
func OpenStore(ctx context.Context, rawURL string) (Store, error) {
	if rawURL == "" || rawURL == "memory" || rawURL == "memory:" {
		return NewMemoryStore(), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		dir := u.Path
		if dir == "" {
			dir = u.Opaque
		}
		return NewFileStore(dir)
	case "redis", "rediss":
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][][]byte)}
}

func (s *MemoryStore) Append(_ context.Context, key string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[key] = append(s.logs[key], append([]byte(nil), record...))
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string, from int64) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[key]
	if from >= int64(len(log)) {
		return nil, nil
	}
	out := make([][]byte, 0, int64(len(log))-from)
	for _, rec := range log[from:] {
		out = append(out, append([]byte(nil), rec...))
	}
	return out, nil
}

func (s *MemoryStore) Len(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.logs[key])), nil
}

func (s *MemoryStore) Close() error { return nil }

// FileStore appends records to one file per key. Every record is written as a
// single msgpack bin value so the file can be read back as a stream.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(s.dir, name+".log")
}

func (s *FileStore) Append(_ context.Context, key string, record []byte) error {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FileStore) Range(_ context.Context, key string, from int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [][]byte
	_, err := s.scan(key, func(i int64, rec []byte) {
		if i >= from {
			out = append(out, rec)
		}
	})
	return out, err
}

func (s *FileStore) Len(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan(key, func(int64, []byte) {})
}

func (s *FileStore) scan(key string, fn func(int64, []byte)) (int64, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(f))
	var n int64
	for {
		rec, err := dec.DecodeBytes()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read %s record %d: %w", key, n, err)
		}
		fn(n, rec)
		n++
	}
}

func (s *FileStore) Close() error { return nil }

// RedisStore keeps each log in a Redis list.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Append(ctx context.Context, key string, record []byte) error {
	return s.rdb.RPush(ctx, key, record).Err()
}

func (s *RedisStore) Range(ctx context.Context, key string, from int64) ([][]byte, error) {
	vals, err := s.rdb.LRange(ctx, key, from, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, key).Result()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
