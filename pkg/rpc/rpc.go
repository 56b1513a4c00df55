package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cinderchain/cinder/pkg/core"
	"github.com/cinderchain/cinder/pkg/gossip"
	"github.com/cinderchain/cinder/pkg/miner"
)

// Server is the local HTTP surface of a node: chain inspection, payload
// submission to the miner, and a WebSocket feed of accepted blocks. It is an
// operator interface, not part of the peer-to-peer protocol.
type Server struct {
	listenAddr string
	ledger     *core.Ledger
	members    *gossip.Membership
	miner      *miner.Miner
	events     chan<- gossip.Event

	router     *mux.Router
	hub        *wsHub
	httpServer *http.Server

	log *slog.Logger
}

// NewServer creates an RPC server over the node's components.
func NewServer(listenAddr string, ledger *core.Ledger, members *gossip.Membership, m *miner.Miner, events chan<- gossip.Event, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listenAddr: listenAddr,
		ledger:     ledger,
		members:    members,
		miner:      m,
		events:     events,
		router:     mux.NewRouter(),
		hub:        newWSHub(logger),
		log:        logger,
	}
	s.registerRoutes()
	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("rpc server", "err", err)
		}
	}()

	s.log.Info("rpc server started", "addr", s.listenAddr)
	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to a short
// deadline.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// NotifyBlock pushes an accepted block to WebSocket subscribers.
func (s *Server) NotifyBlock(block core.Block) {
	s.hub.broadcast(wsEvent{Type: "block_accepted", Block: &block})
}

// NotifyChain pushes a chain replacement to WebSocket subscribers.
func (s *Server) NotifyChain(blocks []core.Block) {
	s.hub.broadcast(wsEvent{Type: "chain_replaced", Height: len(blocks)})
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")

	s.router.HandleFunc("/chain", s.chainHandler).Methods("GET")
	s.router.HandleFunc("/blocks/latest", s.latestBlockHandler).Methods("GET")
	s.router.HandleFunc("/blocks/{id:[0-9]+}", s.blockHandler).Methods("GET")
	s.router.HandleFunc("/blocks", s.submitHandler).Methods("POST")

	s.router.HandleFunc("/peers", s.peersHandler).Methods("GET")
	s.router.HandleFunc("/sync", s.syncHandler).Methods("POST")

	s.router.HandleFunc("/ws", s.hub.handleWS)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"status": "ok",
		"height": s.ledger.Height(),
		"time":   time.Now().Unix(),
	})
}

func (s *Server) chainHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.ledger.Blocks())
}

func (s *Server) latestBlockHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.ledger.Last())
}

func (s *Server) blockHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		errorResponse(w, "invalid block id", http.StatusBadRequest)
		return
	}
	block, ok := s.ledger.Block(id)
	if !ok {
		errorResponse(w, "block not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, block)
}

// submitHandler queues an opaque payload for the miner.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Data == "" {
		errorResponse(w, "data must not be empty", http.StatusBadRequest)
		return
	}
	if err := s.miner.Enqueue(req.Data); err != nil {
		errorResponse(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	jsonResponseCode(w, http.StatusAccepted, map[string]any{"queued": req.Data})
}

func (s *Server) peersHandler(w http.ResponseWriter, r *http.Request) {
	peers := s.members.Peers()
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.String()
	}
	jsonResponse(w, map[string]any{"count": len(ids), "peers": ids})
}

// syncHandler triggers a chain request round against the peer group.
func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case s.events <- gossip.SyncRequest{}:
		jsonResponseCode(w, http.StatusAccepted, map[string]any{"status": "sync requested"})
	default:
		errorResponse(w, "node is busy", http.StatusServiceUnavailable)
	}
}

func jsonResponse(w http.ResponseWriter, v any) {
	jsonResponseCode(w, http.StatusOK, v)
}

func jsonResponseCode(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
