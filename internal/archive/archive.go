// Package archive 基于 bbolt 的对局回放归档
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketMatches = []byte("matches")
	bucketReplays = []byte("replays")
)

var (
	// ErrNotFound 对局不存在
	ErrNotFound = errors.New("archive: 对局不存在")
	// ErrInvalidID 对局 ID 不是合法的 UUID
	ErrInvalidID = errors.New("archive: 非法的对局 ID")
)

// Match 对局摘要
type Match struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Players   int       `json:"players"`
	LastTick  int64     `json:"last_tick"`
	Reason    string    `json:"reason"`
	Size      int       `json:"size"`
}

// Archive 对局归档
type Archive struct {
	db *bbolt.DB
}

// Open 打开或创建归档文件
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开归档失败: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMatches); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketReplays)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化归档失败: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close 关闭归档
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Put 保存对局摘要与回放数据
func (a *Archive) Put(m Match, replay []byte) error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, m.ID)
	}
	m.Size = len(replay)
	if replay == nil {
		replay = []byte{}
	}
	meta, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(m.ID)
		if err := tx.Bucket(bucketMatches).Put(key, meta); err != nil {
			return err
		}
		return tx.Bucket(bucketReplays).Put(key, replay)
	})
}

// Get 读取对局摘要与回放数据
func (a *Archive) Get(id string) (Match, []byte, error) {
	var m Match
	var replay []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMatches).Get([]byte(id))
		if meta == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(meta, &m); err != nil {
			return fmt.Errorf("解析对局摘要失败: %w", err)
		}
		// bbolt 返回的切片只在事务内有效
		replay = append([]byte(nil), tx.Bucket(bucketReplays).Get([]byte(id))...)
		return nil
	})
	if err != nil {
		return Match{}, nil, err
	}
	return m, replay, nil
}

// List 按开始时间排列的全部对局摘要
func (a *Archive) List() ([]Match, error) {
	var out []Match
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMatches).ForEach(func(k, v []byte) error {
			var m Match
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("解析对局 %s 失败: %w", k, err)
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Delete 删除对局
func (a *Archive) Delete(id string) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketMatches).Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := tx.Bucket(bucketMatches).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketReplays).Delete([]byte(id))
	})
}
