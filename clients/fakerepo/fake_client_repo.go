package fakeclientrepo

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-wallet-web/clients"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]*clients.Client
	lock    sync.RWMutex
}

func NewFakeClientRepo() clients.Repo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (r *FakeClientRepo) Upsert(clientData *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if clientData.ID == "" {
		clientData.ID = uuid.New().String()
	}
	copied := *clientData
	r.clients[clientData.ID] = &copied
	return nil
}

func (r *FakeClientRepo) Get(clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, apperrors.ErrInvalidClient
	}
	copied := *client
	return &copied, nil
}
