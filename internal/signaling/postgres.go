package signaling

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"livelinks-platform/internal/audit"
	"livelinks-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// NOTE: This store assumes the following table exists:
//
// CREATE TABLE call_sessions (
//   id           TEXT PRIMARY KEY,
//   caller_id    TEXT NOT NULL,
//   callee_id    TEXT NOT NULL,
//   call_type    TEXT NOT NULL,
//   room_name    TEXT NOT NULL UNIQUE,
//   status       TEXT NOT NULL DEFAULT 'pending',
//   ended_reason TEXT,
//   created_at   TIMESTAMPTZ NOT NULL,
//   answered_at  TIMESTAMPTZ,
//   ended_at     TIMESTAMPTZ,
//   updated_at   TIMESTAMPTZ NOT NULL
// );
//
// Every mutation is a single-statement status compare-and-set (UPDATE ...
// WHERE status = ...), so concurrent actions on the same row serialize in
// the database and losers observe no-rows.

const callRowColumns = `id, caller_id, callee_id, call_type, room_name, status, ended_reason, created_at, answered_at, ended_at, updated_at`

// PostgresStore is the production Store. Mutations publish the resulting row
// to the bus, which is how peers observe signaling (the Go rendition of a
// row changefeed).
type PostgresStore struct {
	db    *sql.DB
	pub   Publisher
	rdb   *redis.Client
	audit *audit.Service
	log   *slog.Logger
	clock func() time.Time

	// slotTTL bounds how long a crashed caller blocks its own redial.
	slotTTL time.Duration
}

type PostgresStoreOptions struct {
	// Redis enables the cross-device single-active-call slot. Optional.
	Redis *redis.Client
	// Audit receives best-effort lifecycle records. Optional.
	Audit *audit.Service
	// SlotTTL defaults to 2 minutes.
	SlotTTL time.Duration
	Log     *slog.Logger
}

func NewPostgresStore(db *sql.DB, pub Publisher, opts PostgresStoreOptions) *PostgresStore {
	if opts.SlotTTL <= 0 {
		opts.SlotTTL = 2 * time.Minute
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &PostgresStore{
		db:      db,
		pub:     pub,
		rdb:     opts.Redis,
		audit:   opts.Audit,
		log:     opts.Log,
		clock:   time.Now,
		slotTTL: opts.SlotTTL,
	}
}

func (s *PostgresStore) CreateCall(ctx context.Context, req CreateCallRequest) (CallRow, error) {
	if req.ID == "" || req.CallerID == "" || req.CalleeID == "" || req.RoomName == "" {
		return CallRow{}, ErrInvalidArgument
	}
	if req.CallerID == req.CalleeID {
		return CallRow{}, ErrInvalidArgument
	}
	if req.CallType != CallTypeVoice && req.CallType != CallTypeVideo {
		return CallRow{}, ErrInvalidArgument
	}

	// Cross-device guard: a user dialing from two devices races on the redis
	// slot before either insert lands.
	if s.rdb != nil {
		ok, err := utils.AcquireCallSlot(ctx, s.rdb, req.CallerID, req.ID, s.slotTTL)
		if err != nil {
			return CallRow{}, err
		}
		if !ok {
			return CallRow{}, ErrBusy
		}
	}

	now := s.clock().UTC()
	var row CallRow

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// In-database guard: no live call may involve the caller.
		const busyQ = `
SELECT EXISTS (
  SELECT 1 FROM call_sessions
  WHERE (caller_id = $1 OR callee_id = $1)
    AND status IN ('pending', 'accepted', 'active')
)
`
		var busy bool
		if err := tx.QueryRowContext(ctx, busyQ, req.CallerID).Scan(&busy); err != nil {
			return err
		}
		if busy {
			return ErrBusy
		}

		const insertQ = `
INSERT INTO call_sessions (id, caller_id, callee_id, call_type, room_name, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)
RETURNING ` + callRowColumns
		var err error
		row, err = scanCallRow(tx.QueryRowContext(ctx, insertQ, req.ID, req.CallerID, req.CalleeID, string(req.CallType), req.RoomName, now))
		return err
	})
	if err != nil {
		if s.rdb != nil {
			_ = utils.ReleaseCallSlot(ctx, s.rdb, req.CallerID, req.ID)
		}
		return CallRow{}, err
	}

	s.publish(ctx, EventInsert, row)
	if s.audit != nil {
		if err := s.audit.LogCallCreated(ctx, row.ID, row.CallerID, row.CalleeID, string(row.CallType)); err != nil {
			s.log.Warn("signaling: audit append failed", "call_id", row.ID, "err", err)
		}
	}
	return row, nil
}

func (s *PostgresStore) AcceptCall(ctx context.Context, callID, userID string) (bool, error) {
	if callID == "" || userID == "" {
		return false, ErrInvalidArgument
	}

	const q = `
UPDATE call_sessions
SET status = 'accepted', answered_at = $3, updated_at = $3
WHERE id = $1 AND callee_id = $2 AND status = 'pending'
RETURNING ` + callRowColumns

	row, err := scanCallRow(s.db.QueryRowContext(ctx, q, callID, userID, s.clock().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Raced with cancel/timeout; caller surfaces this as unavailable.
			return false, nil
		}
		return false, err
	}

	s.publish(ctx, EventUpdate, row)
	if s.audit != nil {
		if err := s.audit.LogCallAccepted(ctx, row.ID, userID); err != nil {
			s.log.Warn("signaling: audit append failed", "call_id", row.ID, "err", err)
		}
	}
	return true, nil
}

func (s *PostgresStore) DeclineCall(ctx context.Context, callID, userID string) error {
	if callID == "" || userID == "" {
		return ErrInvalidArgument
	}

	const q = `
UPDATE call_sessions
SET status = 'declined', ended_reason = 'declined', ended_at = $3, updated_at = $3
WHERE id = $1 AND (caller_id = $2 OR callee_id = $2) AND status = 'pending'
RETURNING ` + callRowColumns

	row, err := scanCallRow(s.db.QueryRowContext(ctx, q, callID, userID, s.clock().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already terminal; decline is best-effort.
			return nil
		}
		return err
	}

	s.releaseSlot(ctx, row)
	s.publish(ctx, EventUpdate, row)
	if s.audit != nil {
		if err := s.audit.LogCallDeclined(ctx, row.ID, userID); err != nil {
			s.log.Warn("signaling: audit append failed", "call_id", row.ID, "err", err)
		}
	}
	return nil
}

func (s *PostgresStore) ActivateCall(ctx context.Context, callID, userID string) error {
	if callID == "" || userID == "" {
		return ErrInvalidArgument
	}

	const q = `
UPDATE call_sessions
SET status = 'active', updated_at = $3
WHERE id = $1 AND (caller_id = $2 OR callee_id = $2) AND status = 'accepted'
RETURNING ` + callRowColumns

	row, err := scanCallRow(s.db.QueryRowContext(ctx, q, callID, userID, s.clock().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Second activate (both peers report connected); idempotent.
			return nil
		}
		return err
	}

	s.publish(ctx, EventUpdate, row)
	if s.audit != nil {
		if err := s.audit.LogCallActivated(ctx, row.ID, userID); err != nil {
			s.log.Warn("signaling: audit append failed", "call_id", row.ID, "err", err)
		}
	}
	return nil
}

func (s *PostgresStore) EndCall(ctx context.Context, callID, userID string, reason EndReason) error {
	if callID == "" || userID == "" {
		return ErrInvalidArgument
	}
	status := statusForReason(reason)

	const q = `
UPDATE call_sessions
SET status = $3, ended_reason = $4, ended_at = $5, updated_at = $5
WHERE id = $1 AND (caller_id = $2 OR callee_id = $2)
  AND status IN ('pending', 'accepted', 'active')
RETURNING ` + callRowColumns

	row, err := scanCallRow(s.db.QueryRowContext(ctx, q, callID, userID, string(status), string(reason), s.clock().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already terminal; end is best-effort.
			return nil
		}
		return err
	}

	s.releaseSlot(ctx, row)
	s.publish(ctx, EventUpdate, row)
	if s.audit != nil {
		if err := s.audit.LogCallEnded(ctx, row.ID, userID, string(reason)); err != nil {
			s.log.Warn("signaling: audit append failed", "call_id", row.ID, "err", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetActiveCall(ctx context.Context, userID string) (ActiveCall, bool, error) {
	if userID == "" {
		return ActiveCall{}, false, ErrInvalidArgument
	}

	const q = `
SELECT ` + callRowColumns + `
FROM call_sessions
WHERE (caller_id = $1 OR callee_id = $1)
  AND status IN ('pending', 'accepted', 'active')
ORDER BY created_at DESC
LIMIT 1
`
	row, err := scanCallRow(s.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActiveCall{}, false, nil
		}
		return ActiveCall{}, false, err
	}
	return ActiveCall{CallRow: row, IsCaller: row.CallerID == userID}, true, nil
}

func (s *PostgresStore) GetCallByRoom(ctx context.Context, roomName string) (CallRow, error) {
	if roomName == "" {
		return CallRow{}, ErrInvalidArgument
	}

	const q = `
SELECT ` + callRowColumns + `
FROM call_sessions
WHERE room_name = $1
ORDER BY created_at DESC
LIMIT 1
`
	row, err := scanCallRow(s.db.QueryRowContext(ctx, q, roomName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRow{}, ErrNotFound
		}
		return CallRow{}, err
	}
	return row, nil
}

// publish forwards a row change to the bus. Delivery failures are logged,
// not returned: the row mutation already committed and peers recover via
// GetActiveCall on restart.
func (s *PostgresStore) publish(ctx context.Context, typ EventType, row CallRow) {
	if err := publishRow(ctx, s.pub, typ, row); err != nil {
		s.log.Error("signaling: bus publish failed", "call_id", row.ID, "status", string(row.Status), "err", err)
	}
}

func (s *PostgresStore) releaseSlot(ctx context.Context, row CallRow) {
	if s.rdb == nil {
		return
	}
	if err := utils.ReleaseCallSlot(ctx, s.rdb, row.CallerID, row.ID); err != nil {
		s.log.Warn("signaling: call slot release failed", "call_id", row.ID, "err", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallRow(r rowScanner) (CallRow, error) {
	var row CallRow
	var callType, status string
	var endedReason sql.NullString
	var answeredAt, endedAt sql.NullTime

	if err := r.Scan(
		&row.ID,
		&row.CallerID,
		&row.CalleeID,
		&callType,
		&row.RoomName,
		&status,
		&endedReason,
		&row.CreatedAt,
		&answeredAt,
		&endedAt,
		&row.UpdatedAt,
	); err != nil {
		return CallRow{}, err
	}

	row.CallType = CallType(callType)
	row.Status = CallStatus(status)
	if endedReason.Valid {
		row.EndedReason = EndReason(endedReason.String)
	}
	if answeredAt.Valid {
		row.AnsweredAt = answeredAt.Time
	}
	if endedAt.Valid {
		row.EndedAt = endedAt.Time
	}
	return row, nil
}
