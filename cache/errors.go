package cache

import (
	"errors"
	"fmt"
)

// ErrKind classifies cache errors. The numeric values are stable and are
// the codes exposed by the handle package (0 means success).
type ErrKind int

const (
	KindOK ErrKind = iota
	KindNoShard
	KindNoSpace
	KindInternal
	KindKeyNotFound
	KindKeyExpired
	KindKeyExists
	KindBufferTooSmall
	KindEmptyValue
	KindClosed
)

var (
	// ErrNoShard means the key hash routed to a shard index that does not exist.
	ErrNoShard = errors.New("cache: shard not found for key")
	// ErrNoSpace means the shard is full; other shards may still have room.
	ErrNoSpace = errors.New("cache: no space left in shard")
	// ErrInternal signals a bookkeeping bug. Details are logged.
	ErrInternal = errors.New("cache: internal error")
	// ErrKeyNotFound is returned by Get/Evict when the key is absent.
	ErrKeyNotFound = errors.New("cache: key not found")
	// ErrKeyExpired is returned by Get when the entry is past its deadline
	// but has not been collected yet.
	ErrKeyExpired = errors.New("cache: key expired")
	// ErrKeyExists is returned by Set on an existing key unless ForceSet is on.
	ErrKeyExists = errors.New("cache: key already exists")
	// ErrBufferTooSmall is returned by Get when the buffer cannot hold the value.
	ErrBufferTooSmall = errors.New("cache: buffer too small")
	// ErrEmptyValue is returned by Set for a zero-length payload.
	ErrEmptyValue = errors.New("cache: empty value")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("cache: closed")
)

var kindErrors = [...]error{
	KindOK:             nil,
	KindNoShard:        ErrNoShard,
	KindNoSpace:        ErrNoSpace,
	KindInternal:       ErrInternal,
	KindKeyNotFound:    ErrKeyNotFound,
	KindKeyExpired:     ErrKeyExpired,
	KindKeyExists:      ErrKeyExists,
	KindBufferTooSmall: ErrBufferTooSmall,
	KindEmptyValue:     ErrEmptyValue,
	KindClosed:         ErrClosed,
}

// KindOf maps an error returned by the cache to its kind.
// nil maps to KindOK; errors not produced by the cache map to KindInternal.
func KindOf(err error) ErrKind {
	if err == nil {
		return KindOK
	}
	for k := KindNoShard; k < ErrKind(len(kindErrors)); k++ {
		if errors.Is(err, kindErrors[k]) {
			return k
		}
	}
	return KindInternal
}

// Err returns the sentinel error for k (nil for KindOK).
func (k ErrKind) Err() error {
	if k < 0 || int(k) >= len(kindErrors) {
		return ErrInternal
	}
	return kindErrors[k]
}

func (k ErrKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNoShard:
		return "no_shard"
	case KindNoSpace:
		return "no_space"
	case KindInternal:
		return "internal"
	case KindKeyNotFound:
		return "key_not_found"
	case KindKeyExpired:
		return "key_expired"
	case KindKeyExists:
		return "key_exists"
	case KindBufferTooSmall:
		return "buffer_too_small"
	case KindEmptyValue:
		return "empty_value"
	case KindClosed:
		return "closed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// internalf wraps ErrInternal with operation context.
func internalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}
