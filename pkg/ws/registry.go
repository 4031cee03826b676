package ws

import "sync"

// registry 在线连接表
// 握手前先 reserve 占位，并发握手不会越过上限；升级失败时 release 归还
type registry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	reserved int
	limit    int
}

func newRegistry(limit int) *registry {
	return &registry{clients: make(map[string]*Client), limit: limit}
}

func (r *registry) reserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients)+r.reserved >= r.limit {
		return false
	}
	r.reserved++
	return true
}

func (r *registry) release() {
	r.mu.Lock()
	r.reserved--
	r.mu.Unlock()
}

// commit 把占位转为在线连接
func (r *registry) commit(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved--
	if _, ok := r.clients[c.ID()]; ok {
		return ErrClientIDExists
	}
	r.clients[c.ID()] = c
	return nil
}

func (r *registry) remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	// 同 ID 的新连接不能被旧连接的清理移除
	if cur, ok := r.clients[c.ID()]; ok && cur == c {
		delete(r.clients, c.ID())
		return true
	}
	return false
}

func (r *registry) get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
