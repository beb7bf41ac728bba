// Package door implements the gateway-side ingress policy (§4.12): which
// senders a channel (Telegram, Discord, etc.) is allowed to act on behalf
// of, gated by one of four modes.
package door

import (
	"context"
	"crypto/rand"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/store"
)

// Mode selects the door's ingress policy (§4.12).
type Mode string

const (
	ModeOpen     Mode = "open"
	ModeList     Mode = "list"
	ModeLandlord Mode = "landlord"
	ModeCard     Mode = "card"
)

// Action is the verdict checkMessage returns.
type Action string

const (
	ActionAllow        Action = "allow"
	ActionDeny         Action = "deny"
	ActionValidateCode Action = "validate_code"
	ActionChallenge    Action = "challenge"
)

// Verdict is the result of checkMessage.
type Verdict struct {
	Action  Action
	Code    string
	Message string
}

// PairingResult is the result of attemptPairing.
type PairingResult struct {
	Success bool
	Message string
}

const (
	pairingCodeLength = 8
	pairingCodeTTL    = 5 * time.Minute
	maxActiveCodes    = 3
	pairingCharset    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6,10}$`)

// Door evaluates and maintains per-sender ingress state (§4.12).
type Door struct {
	store *store.Store
	mode  Mode
}

// New constructs a Door for the given mode.
func New(st *store.Store, mode Mode) *Door {
	return &Door{store: st, mode: mode}
}

// CheckMessage evaluates one inbound message against the configured mode
// (§4.12).
func (d *Door) CheckMessage(ctx context.Context, platform, senderID, text string, staticAllowed []string) (Verdict, error) {
	switch d.mode {
	case ModeOpen:
		return Verdict{Action: ActionAllow}, nil
	case ModeList:
		return d.checkList(senderID, staticAllowed), nil
	case ModeLandlord:
		return d.checkLandlord(ctx, platform, senderID)
	case ModeCard:
		return d.checkCard(ctx, platform, senderID, text)
	default:
		return Verdict{}, errors.Errorf("unknown door mode: %s", d.mode)
	}
}

func (d *Door) checkList(senderID string, staticAllowed []string) Verdict {
	if len(staticAllowed) == 0 {
		return Verdict{Action: ActionAllow}
	}
	for _, allowed := range staticAllowed {
		if allowed == senderID {
			return Verdict{Action: ActionAllow}
		}
	}
	return Verdict{Action: ActionDeny}
}

func (d *Door) checkLandlord(ctx context.Context, platform, senderID string) (Verdict, error) {
	entry, err := d.store.GetDoorPolicy(ctx, platform, senderID)
	if err != nil {
		return Verdict{}, err
	}
	if entry.Status == store.DoorApproved {
		return Verdict{Action: ActionAllow}, nil
	}
	if entry.Status == store.DoorBlocked {
		return Verdict{Action: ActionDeny}, nil
	}

	entries, err := d.store.ListDoorPolicy(ctx)
	if err != nil {
		return Verdict{}, err
	}
	for _, e := range entries {
		if e.Status == store.DoorApproved {
			// Someone else already holds the tenancy.
			if err := d.store.UpsertDoorPolicy(ctx, store.DoorPolicyEntry{
				Platform: platform, SenderID: senderID, Status: store.DoorBlocked,
			}); err != nil {
				return Verdict{}, err
			}
			return Verdict{Action: ActionDeny}, nil
		}
	}

	now := time.Now().UTC()
	if err := d.store.UpsertDoorPolicy(ctx, store.DoorPolicyEntry{
		Platform: platform, SenderID: senderID, Status: store.DoorApproved, PairedAt: &now,
	}); err != nil {
		return Verdict{}, err
	}
	return Verdict{Action: ActionAllow}, nil
}

func (d *Door) checkCard(ctx context.Context, platform, senderID, text string) (Verdict, error) {
	entry, err := d.store.GetDoorPolicy(ctx, platform, senderID)
	if err != nil {
		return Verdict{}, err
	}

	switch entry.Status {
	case store.DoorApproved:
		return Verdict{Action: ActionAllow}, nil
	case store.DoorBlocked:
		return Verdict{Action: ActionDeny}, nil
	}

	candidate := strings.ToUpper(strings.TrimSpace(text))
	if codePattern.MatchString(candidate) {
		return Verdict{Action: ActionValidateCode, Code: candidate}, nil
	}

	if err := d.store.UpsertDoorPolicy(ctx, store.DoorPolicyEntry{
		Platform: platform, SenderID: senderID, Status: store.DoorPending,
	}); err != nil {
		return Verdict{}, err
	}
	return Verdict{Action: ActionChallenge, Message: "send your pairing code to continue"}, nil
}

// GeneratePairingCode mints a new short-lived pairing code (§4.12).
func (d *Door) GeneratePairingCode(ctx context.Context, platform *string) (string, error) {
	now := time.Now().UTC()
	if err := d.store.PruneExpiredPairingChallenges(ctx, now); err != nil {
		return "", err
	}

	active, err := d.store.CountActivePairingChallenges(ctx, now)
	if err != nil {
		return "", err
	}
	if active >= maxActiveCodes {
		return "", errors.New("too many active pairing codes")
	}

	code, err := randomPairingCode()
	if err != nil {
		return "", err
	}

	if err := d.store.CreatePairingChallenge(ctx, store.PairingChallenge{
		Code:      code,
		Platform:  platform,
		ExpiresAt: now.Add(pairingCodeTTL),
		CreatedAt: now,
	}); err != nil {
		return "", err
	}
	return code, nil
}

func randomPairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes for pairing code")
	}
	code := make([]byte, pairingCodeLength)
	for i, b := range buf {
		code[i] = pairingCharset[int(b)%len(pairingCharset)]
	}
	return string(code), nil
}

// AttemptPairing validates a pairing code and, on success, marks the
// sender approved (§4.12).
func (d *Door) AttemptPairing(ctx context.Context, platform, senderID, code string) (PairingResult, error) {
	now := time.Now().UTC()
	candidate := strings.ToUpper(strings.TrimSpace(code))

	challenge, ok, err := d.store.LookupPairingChallenge(ctx, candidate, now)
	if err != nil {
		return PairingResult{}, err
	}
	if !ok {
		return PairingResult{Success: false, Message: "pairing code is invalid or expired"}, nil
	}
	if challenge.Platform != nil && *challenge.Platform != platform {
		return PairingResult{Success: false, Message: "pairing code was issued for a different platform"}, nil
	}

	if err := d.store.UpsertDoorPolicy(ctx, store.DoorPolicyEntry{
		Platform: platform, SenderID: senderID, Status: store.DoorApproved, PairedAt: &now,
	}); err != nil {
		return PairingResult{}, err
	}
	if err := d.store.DeletePairingChallenge(ctx, candidate); err != nil {
		return PairingResult{}, err
	}
	return PairingResult{Success: true, Message: "paired"}, nil
}
