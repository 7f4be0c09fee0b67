package service

import (
	"github.com/zlnvch/flipbook/store"
	"github.com/zlnvch/flipbook/transport"
	"github.com/zlnvch/flipbook/worker"
)

type Service struct {
	Store           store.KeyValueStore
	Transport       transport.Transport
	SnapshotBatcher *worker.SnapshotBatcher
	JWTSecret       []byte
}

func NewService(
	store store.KeyValueStore,
	transport transport.Transport,
	jwtSecret []byte,
	snapshotFlushMillis int,
) *Service {
	s := &Service{
		Store:     store,
		Transport: transport,
		JWTSecret: jwtSecret,
	}
	s.SnapshotBatcher = worker.NewSnapshotBatcher(s, snapshotFlushMillis)
	return s
}
