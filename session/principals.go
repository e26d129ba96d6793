package session

import "sync"

type (
	// PrincipalSet is the set of usernames currently logged in through a
	// cookie that carries the username itself.
	PrincipalSet struct {
		sync.RWMutex
		names map[string]struct{}
	}
)

func NewPrincipalSet() *PrincipalSet {
	return &PrincipalSet{names: make(map[string]struct{})}
}

func (p *PrincipalSet) Add(username string) {
	p.Lock()
	p.names[username] = struct{}{}
	p.Unlock()
}

func (p *PrincipalSet) Remove(username string) {
	p.Lock()
	delete(p.names, username)
	p.Unlock()
}

func (p *PrincipalSet) Contains(username string) bool {
	p.RLock()
	defer p.RUnlock()
	_, ok := p.names[username]
	return ok
}

func (p *PrincipalSet) Len() int {
	p.RLock()
	defer p.RUnlock()
	return len(p.names)
}
