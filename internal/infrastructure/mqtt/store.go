package mqtt

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/database"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/logging"
	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// storeOpTimeout bounds each SQL statement issued by the store. paho's
// Store interface has no context, so the store supplies its own.
const storeOpTimeout = 5 * time.Second

// SQLiteStore persists in-flight QoS 1 and 2 packets in the mqtt_store
// table so they survive a process restart.
//
// The table must exist; apply the embedded migrations before use. Rows are
// scoped by client ID so several clients can share one database file.
//
// paho's Store interface cannot return errors, so failures are logged and
// the operation is dropped.
type SQLiteStore struct {
	db       *database.DB
	clientID string
	logger   *logging.Logger

	mu     sync.RWMutex
	opened bool
}

// NewSQLiteStore returns a store for clientID backed by db.
func NewSQLiteStore(db *database.DB, clientID string, logger *logging.Logger) *SQLiteStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SQLiteStore{
		db:       db,
		clientID: clientID,
		logger:   logger.With("component", "mqtt_store"),
	}
}

// Open enables the store.
func (s *SQLiteStore) Open() {
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	s.logger.Debug("store opened", "path", s.db.Path())
}

// Close disables the store. The database itself stays open.
func (s *SQLiteStore) Close() {
	s.mu.Lock()
	s.opened = false
	s.mu.Unlock()
	s.logger.Debug("store closed")
}

// Put stores message under key, replacing any previous packet.
func (s *SQLiteStore) Put(key string, message packets.ControlPacket) {
	if !s.isOpen("put") {
		return
	}

	var buf bytes.Buffer
	if err := message.Write(&buf); err != nil {
		s.logger.Error("encoding packet", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mqtt_store (client_id, key, packet, stored_at) VALUES (?, ?, ?, ?)`,
		s.clientID, key, buf.Bytes(), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		s.logger.Error("storing packet", "key", key, "error", err)
	}
}

// Get returns the packet stored under key, or nil.
func (s *SQLiteStore) Get(key string) packets.ControlPacket {
	if !s.isOpen("get") {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT packet FROM mqtt_store WHERE client_id = ? AND key = ?`,
		s.clientID, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logger.Error("loading packet", "key", key, "error", err)
		return nil
	}

	packet, err := packets.ReadPacket(bytes.NewReader(raw))
	if err != nil {
		s.logger.Error("decoding packet", "key", key, "error", err)
		return nil
	}
	return packet
}

// All returns every stored key, oldest first.
func (s *SQLiteStore) All() []string {
	if !s.isOpen("all") {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM mqtt_store WHERE client_id = ? ORDER BY stored_at, rowid`,
		s.clientID,
	)
	if err != nil {
		s.logger.Error("listing packets", "error", err)
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			s.logger.Error("scanning packet key", "error", err)
			return keys
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("listing packets", "error", err)
	}
	return keys
}

// Del removes the packet stored under key.
func (s *SQLiteStore) Del(key string) {
	if !s.isOpen("del") {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM mqtt_store WHERE client_id = ? AND key = ?`,
		s.clientID, key,
	); err != nil {
		s.logger.Error("deleting packet", "key", key, "error", err)
	}
}

// Reset removes every packet of this client.
func (s *SQLiteStore) Reset() {
	if !s.isOpen("reset") {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM mqtt_store WHERE client_id = ?`,
		s.clientID,
	); err != nil {
		s.logger.Error("resetting store", "error", err)
	}
}

// HealthCheck verifies the backing database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *SQLiteStore) isOpen(op string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		s.logger.Warn("store used while closed", "op", op)
	}
	return s.opened
}

var (
	_ pahomqtt.Store     = (*SQLiteStore)(nil)
	_ iotf.HealthChecker = (*SQLiteStore)(nil)
)
