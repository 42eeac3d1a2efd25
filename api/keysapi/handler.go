// Package keysapi implements the HTTP read surface of §6: the collaborator
// interface the reconciliation engine exposes over the store it maintains.
package keysapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/lido-go/registry-reconciler/internal/registry"
)

// Reader is the subset of the Store (E) the HTTP layer reads from.
type Reader interface {
	GetMeta(ctx context.Context, moduleAddress common.Address) (*registry.Meta, error)
	FindAllKeys(ctx context.Context, moduleAddress common.Address) ([]*registry.Key, error)
	FindKeysByPubkeys(ctx context.Context, pubkeys [][48]byte) ([]*registry.Key, error)
}

// Handler serves the read surface for one Store.
type Handler struct {
	store Reader
}

// NewHandler builds a Handler reading from store.
func NewHandler(store Reader) *Handler {
	return &Handler{store: store}
}

// metaResponse is the wire representation of a Meta row.
type metaResponse struct {
	ModuleAddress string `json:"moduleAddress"`
	BlockNumber   uint64 `json:"blockNumber"`
	BlockHash     string `json:"blockHash"`
	Timestamp     uint64 `json:"timestamp"`
	KeysOpIndex   uint64 `json:"keysOpIndex"`
}

func toMetaResponse(m *registry.Meta) metaResponse {
	return metaResponse{
		ModuleAddress: m.ModuleAddress.Hex(),
		BlockNumber:   m.BlockNumber,
		BlockHash:     m.BlockHash.Hex(),
		Timestamp:     m.Timestamp,
		KeysOpIndex:   m.KeysOpIndex,
	}
}

// keyResponse is the wire representation of a Key row.
type keyResponse struct {
	ModuleAddress    string `json:"moduleAddress"`
	OperatorIndex    uint32 `json:"operatorIndex"`
	Index            uint32 `json:"index"`
	Pubkey           string `json:"pubkey"`
	DepositSignature string `json:"depositSignature"`
	Used             bool   `json:"used"`
}

func toKeyResponse(k *registry.Key) keyResponse {
	return keyResponse{
		ModuleAddress:    k.ModuleAddress.Hex(),
		OperatorIndex:    k.OperatorIndex,
		Index:            k.Index,
		Pubkey:           "0x" + hex.EncodeToString(k.Pubkey[:]),
		DepositSignature: "0x" + hex.EncodeToString(k.DepositSignature[:]),
		Used:             k.Used,
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Routes mounts the read surface onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/modules/{address}/meta", h.handleGetMeta)
	r.Get("/modules/{address}/keys", h.handleGetKeys)
	r.Get("/keys/{pubkey}", h.handleGetKeyByPubkey)
}

// handleGetMeta responds 425 Too Early when the module has no Meta snapshot
// yet (§6: "the HTTP layer translates this into an 'EL block snapshot' and
// responds 425 Too Early when null").
func (h *Handler) handleGetMeta(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	meta, err := h.store.GetMeta(r.Context(), address)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if meta == nil {
		writeJSONError(w, http.StatusTooEarly, registry.ErrTooEarly.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMetaResponse(meta))
}

// handleGetKeys streams every key for a module as newline-delimited JSON
// (§6: "lazy sequence of Key", "streamed (unbounded result size permitted)").
func (h *Handler) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	keys, err := h.store.FindAllKeys(r.Context(), address)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	flusher, canFlush := w.(http.Flusher)
	for _, k := range keys {
		if err := encoder.Encode(toKeyResponse(k)); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// handleGetKeyByPubkey looks up a single key by its 48-byte BLS pubkey
// (§6: findKeysByPubkeys, here narrowed to one pubkey per request).
func (h *Handler) handleGetKeyByPubkey(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "pubkey")
	decoded, err := hex.DecodeString(trimHexPrefix(raw))
	if err != nil || len(decoded) != 48 {
		writeJSONError(w, http.StatusBadRequest, "pubkey must be 48 bytes of hex")
		return
	}
	var pubkey [48]byte
	copy(pubkey[:], decoded)

	keys, err := h.store.FindKeysByPubkeys(r.Context(), [][48]byte{pubkey})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(keys) == 0 {
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toKeyResponse(keys[0]))
}

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeJSONError(w, http.StatusBadRequest, "invalid module address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
