// internal/pkg/zklock/lock.go
package zklock

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// lockRoot 是所有锁节点的根
const lockRoot = "/orderflow/locks"

type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	log.Debug().Str("component", "zookeeper").Msg(fmt.Sprintf(format, args...))
}

// Connect 建立 ZooKeeper 会话。会话断开后临时节点随之删除，锁自动释放。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	return conn, nil
}

// Lock 是基于临时顺序节点的互斥锁：序号最小的节点持有锁。
// 同一个 Lock 不能被并发使用。
type Lock struct {
	conn     *zk.Conn
	path     string // 例如 /orderflow/locks/order-reconciler
	lockNode string // 持有锁时自己创建的节点
}

// New 创建锁，并确保锁路径存在
func New(conn *zk.Conn, resource string) (*Lock, error) {
	path := lockRoot + "/" + resource
	if err := ensurePath(conn, path); err != nil {
		return nil, err
	}
	return &Lock{conn: conn, path: path}, nil
}

func ensurePath(conn *zk.Conn, path string) error {
	current := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		current += "/" + part
		exists, _, err := conn.Exists(current)
		if err != nil {
			return errors.Wrapf(err, "check lock path %s", current)
		}
		if exists {
			continue
		}
		if _, err := conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return errors.Wrapf(err, "create lock path %s", current)
		}
	}
	return nil
}

// TryLock 不等待：拿不到锁时删除自己的节点并返回 false
func (l *Lock) TryLock() (bool, error) {
	if l.lockNode != "" {
		return true, nil
	}
	node, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, errors.Wrap(err, "create sequential node")
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.conn.Delete(node, -1)
		return false, errors.Wrap(err, "list lock nodes")
	}
	if len(children) == 0 {
		return false, errors.New("lock node vanished")
	}
	// 受保护节点带有 GUID 前缀，只能按序号排序
	sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

	if l.path+"/"+children[0] == node {
		l.lockNode = node
		return true, nil
	}
	if err := l.conn.Delete(node, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return false, errors.Wrap(err, "delete lock node")
	}
	return false, nil
}

// Unlock 释放锁
func (l *Lock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	return nil
}

// sequence 解析节点名末尾的 10 位序号，无法解析时排到最后
func sequence(name string) int64 {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return 1<<63 - 1
	}
	n, err := strconv.ParseInt(name[idx+1:], 10, 64)
	if err != nil {
		return 1<<63 - 1
	}
	return n
}
