// Package sloghooks reports tierstore hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tierstore"
	"github.com/unkn0wn-root/tierstore/provider"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	EvictionEvery uint64 // applies to EvictionApplied and EvictionSkipped
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	evictionCtr atomic.Uint64
}

var _ tierstore.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(compositeKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tierstore.self_heal",
		"key", h.redact(compositeKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(compositeKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tierstore.provider_set_rejected",
		"key", h.redact(compositeKey))
}

func (h *Hooks) EvictionApplied(compositeKey string, cause provider.Cause) {
	if h.l == nil || !sample(h.opts.EvictionEvery, &h.evictionCtr) {
		return
	}
	h.l.Debug("tierstore.eviction_applied",
		"key", h.redact(compositeKey),
		"cause", cause.String())
}

func (h *Hooks) EvictionSkipped(compositeKey, reason string) {
	if h.l == nil || !sample(h.opts.EvictionEvery, &h.evictionCtr) {
		return
	}
	h.l.Debug("tierstore.eviction_skipped",
		"key", h.redact(compositeKey),
		"reason", reason)
}

func (h *Hooks) EvictionDeleteFailed(compositeKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tierstore.eviction_delete_failed",
		"key", h.redact(compositeKey),
		"err", err)
}

func (h *Hooks) MalformedEviction(compositeKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tierstore.malformed_eviction",
		"key", h.redact(compositeKey),
		"reason", reason)
}

func (h *Hooks) GenError(compositeKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tierstore.gen_error",
		"key", h.redact(compositeKey),
		"err", err)
}
