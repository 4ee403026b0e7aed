package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxIdentityLength = 128

// OnlineIDPrefix keeps synthesized ids out of the namespace terminals generate into.
const OnlineIDPrefix = "online:"

// NewOnlineGlobalID returns a time ordered, random globalId for online-only clients.
func NewOnlineGlobalID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("ingest: generate global id: %w", err)
	}
	return OnlineIDPrefix + id.String(), nil
}

// IdentityResolver produces the identity and ordering fields of a record.
type IdentityResolver struct {
	now   func() time.Time
	newID func() (string, error)
}

// NewIdentityResolver builds a resolver. Nil arguments fall back to the wall
// clock and NewOnlineGlobalID.
func NewIdentityResolver(now func() time.Time, newID func() (string, error)) *IdentityResolver {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = NewOnlineGlobalID
	}
	return &IdentityResolver{now: now, newID: newID}
}

// Resolve dispatches to the variant matching the client class.
func (r *IdentityResolver) Resolve(class ClientClass, sub Submission) (Identity, error) {
	if class == OfflineCapable {
		return r.offlineIdentity(sub)
	}
	return r.onlineIdentity(sub)
}

// offlineIdentity passes client values through verbatim and rejects malformed ones.
func (r *IdentityResolver) offlineIdentity(sub Submission) (Identity, error) {
	globalID, err := identityString("globalId", string(sub.GlobalID))
	if err != nil {
		return Identity{}, err
	}
	terminalID, err := identityString("terminalId", string(sub.TerminalID))
	if err != nil {
		return Identity{}, err
	}
	id := Identity{GlobalID: globalID, TerminalID: terminalID}
	if err := r.ordering(sub, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// onlineIdentity fills every absent field with a server-side substitute.
func (r *IdentityResolver) onlineIdentity(sub Submission) (Identity, error) {
	id := Identity{
		GlobalID:   strings.TrimSpace(string(sub.GlobalID)),
		TerminalID: strings.TrimSpace(string(sub.TerminalID)),
	}
	if id.GlobalID == "" {
		generated, err := r.newID()
		if err != nil {
			return Identity{}, err
		}
		id.GlobalID = generated
	} else if tooLong(id.GlobalID) {
		return Identity{}, &IdentityError{Field: "globalId", Reason: fmt.Sprintf("must be at most %d characters", maxIdentityLength)}
	}
	if id.TerminalID == "" {
		id.TerminalID = OnlineTerminalID
	} else if tooLong(id.TerminalID) {
		return Identity{}, &IdentityError{Field: "terminalId", Reason: fmt.Sprintf("must be at most %d characters", maxIdentityLength)}
	}
	if err := r.ordering(sub, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// ordering resolves localOpSeq, createdLocalUtc and deviceEventRaw. The
// sequence is stored as sent and never rewritten.
func (r *IdentityResolver) ordering(sub Submission, id *Identity) error {
	now := r.now().UTC()

	if rawPresent(sub.LocalOpSeq) {
		text, err := rawText(sub.LocalOpSeq)
		if err != nil {
			return &IdentityError{Field: "localOpSeq", Reason: "must be a non-negative integer"}
		}
		seq, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil || seq < 0 {
			return &IdentityError{Field: "localOpSeq", Reason: "must be a non-negative integer"}
		}
		id.LocalOpSeq = seq
	}

	id.CreatedLocalUTC = now
	if created := strings.TrimSpace(sub.CreatedLocalUTC); created != "" {
		ts, err := ParseTimestamp(created)
		if err != nil {
			return &IdentityError{Field: "createdLocalUtc", Reason: "must be an ISO-8601 timestamp"}
		}
		id.CreatedLocalUTC = ts
	}

	id.DeviceEventRaw = now.UnixMilli()
	if rawPresent(sub.DeviceEventRaw) {
		text, err := rawText(sub.DeviceEventRaw)
		if err != nil {
			return &IdentityError{Field: "deviceEventRaw", Reason: "must be an integer"}
		}
		raw, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return &IdentityError{Field: "deviceEventRaw", Reason: "must be an integer"}
		}
		id.DeviceEventRaw = raw
	}
	return nil
}

func identityString(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", &IdentityError{Field: field, Reason: "must not be blank"}
	}
	if tooLong(value) {
		return "", &IdentityError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxIdentityLength)}
	}
	return value, nil
}

// tooLong counts characters, not bytes.
func tooLong(value string) bool {
	return utf8.RuneCountInString(value) > maxIdentityLength
}
