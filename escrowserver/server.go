// Package escrowserver is a reference implementation of the escrow server
// contract (register/fetch keyed by uid+TOTP). It exists to exercise and
// test the escrow client against something real; production deployments
// are expected to run their own server behind the same two-endpoint
// contract.
package escrowserver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.etcd.io/bbolt"
)

var registrationsBucket = []byte("registrations")

// Server is an escrow server backed by a bbolt database, one record per
// UID, routed with chi.
type Server struct {
	db     *bbolt.DB
	router chi.Router
}

type record struct {
	TOTPSecret string `json:"totp_secret"`
	KS         []byte `json:"k_s"`
}

// New opens (creating if necessary) a bbolt database at dbPath and wires
// the /v1/register and /v1/fetch routes.
func New(dbPath string) (*Server, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening escrow database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(registrationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating registrations bucket: %w", err)
	}

	s := &Server{db: db}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/v1/register", s.handleRegister)
	r.Post("/v1/fetch", s.handleFetch)
	s.router = r
	return s, nil
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close closes the underlying database.
func (s *Server) Close() error {
	return s.db.Close()
}

type registerRequest struct {
	UID        string `json:"uid"`
	TOTPSecret string `json:"totp_secret"`
	KS         []byte `json:"k_s"`
}

type fetchRequest struct {
	UID       string `json:"uid"`
	TOTPToken string `json:"totp_token"`
}

type fetchResponse struct {
	KS []byte `json:"k_s"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	uidBytes, err := hex.DecodeString(req.UID)
	if err != nil || len(uidBytes) != 16 {
		http.Error(w, "uid must be 16 bytes of hex", http.StatusBadRequest)
		return
	}

	rec := record{TOTPSecret: req.TOTPSecret, KS: req.KS}
	payload, err := json.Marshal(rec)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(registrationsBucket).Put(uidBytes, payload)
	})
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	uidBytes, err := hex.DecodeString(req.UID)
	if err != nil || len(uidBytes) != 16 {
		http.Error(w, "uid must be 16 bytes of hex", http.StatusBadRequest)
		return
	}

	var rec record
	found := false
	err = s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(registrationsBucket).Get(uidBytes)
		if payload == nil {
			return nil
		}
		found = true
		return json.Unmarshal(payload, &rec)
	})
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "unknown uid", http.StatusUnauthorized)
		return
	}
	if !verifyTOTPCode(rec.TOTPSecret, req.TOTPToken, time.Now()) {
		http.Error(w, "totp rejected", http.StatusUnauthorized)
		return
	}

	_ = json.NewEncoder(w).Encode(fetchResponse{KS: rec.KS})
}
