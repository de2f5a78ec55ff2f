package olatx

import (
	"errors"
	"sync"
)

type registryCenter struct {
	mux   sync.RWMutex
	peers []Peer
	ids   map[string]struct{}
}

func newRegistryCenter() *registryCenter {
	return &registryCenter{
		ids: make(map[string]struct{}),
	}
}

func (r *registryCenter) register(peer Peer) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.ids[peer.ID()]; ok {
		return errors.New("repeat peer id")
	}
	r.ids[peer.ID()] = struct{}{}
	r.peers = append(r.peers, peer)
	return nil
}

// 按注册顺序返回下游服务
func (r *registryCenter) getPeers() []Peer {
	r.mux.RLock()
	defer r.mux.RUnlock()

	peers := make([]Peer, len(r.peers))
	copy(peers, r.peers)
	return peers
}
