package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// GetDoorPolicy loads the ingress policy entry for a platform/sender pair,
// returning a zero-value pending entry if none exists yet (§4.12).
func (s *Store) GetDoorPolicy(ctx context.Context, platform, senderID string) (DoorPolicyEntry, error) {
	var entry DoorPolicyEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT * FROM door_policy WHERE platform = ? AND sender_id = ?
	`, platform, senderID)
	if errors.Is(err, sql.ErrNoRows) {
		return DoorPolicyEntry{Platform: platform, SenderID: senderID, Status: DoorPending}, nil
	}
	return entry, errors.Wrap(err, "failed to load door policy")
}

// UpsertDoorPolicy creates or overwrites the ingress policy entry for a
// platform/sender pair.
func (s *Store) UpsertDoorPolicy(ctx context.Context, entry DoorPolicyEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO door_policy (platform, sender_id, status, paired_at, created_at)
		VALUES (:platform, :sender_id, :status, :paired_at, :created_at)
		ON CONFLICT(platform, sender_id) DO UPDATE SET status = excluded.status, paired_at = excluded.paired_at
	`, entry)
	return errors.Wrap(err, "failed to upsert door policy")
}

// ListDoorPolicy returns every ingress policy entry, used by the "list"
// door mode to render known senders (§4.12).
func (s *Store) ListDoorPolicy(ctx context.Context) ([]DoorPolicyEntry, error) {
	var entries []DoorPolicyEntry
	err := s.db.SelectContext(ctx, &entries, `SELECT * FROM door_policy ORDER BY created_at DESC`)
	return entries, errors.Wrap(err, "failed to list door policy")
}

// CreatePairingChallenge persists a new pairing code.
func (s *Store) CreatePairingChallenge(ctx context.Context, challenge PairingChallenge) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO pairing_challenges (code, platform, expires_at, created_at)
		VALUES (:code, :platform, :expires_at, :created_at)
	`, challenge)
	return errors.Wrap(err, "failed to insert pairing challenge")
}

// CountActivePairingChallenges counts unexpired pairing codes, used to
// enforce the cap on outstanding codes (§4.12).
func (s *Store) CountActivePairingChallenges(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM pairing_challenges WHERE expires_at > ?`, now)
	return count, errors.Wrap(err, "failed to count active pairing challenges")
}

// LookupPairingChallenge validates a pairing code exists and has not
// expired, without consuming it. Callers that still need to enforce a
// restriction (e.g. the issuing platform) before committing to the
// attempt should call DeletePairingChallenge themselves only once every
// check has passed, so a rejected attempt leaves the code usable for a
// retry instead of burning it.
func (s *Store) LookupPairingChallenge(ctx context.Context, code string, now time.Time) (PairingChallenge, bool, error) {
	var challenge PairingChallenge
	err := s.db.GetContext(ctx, &challenge, `SELECT * FROM pairing_challenges WHERE code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return PairingChallenge{}, false, nil
	}
	if err != nil {
		return PairingChallenge{}, false, errors.Wrap(err, "failed to load pairing challenge")
	}
	if challenge.ExpiresAt.Before(now) {
		return PairingChallenge{}, false, nil
	}
	return challenge, true, nil
}

// DeletePairingChallenge removes a pairing code once it has been
// successfully redeemed, preventing reuse.
func (s *Store) DeletePairingChallenge(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pairing_challenges WHERE code = ?`, code)
	return errors.Wrap(err, "failed to delete pairing challenge")
}

// PruneExpiredPairingChallenges deletes expired codes, called by the door
// each time it mints a new pairing code.
func (s *Store) PruneExpiredPairingChallenges(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pairing_challenges WHERE expires_at <= ?`, now)
	return errors.Wrap(err, "failed to prune expired pairing challenges")
}
