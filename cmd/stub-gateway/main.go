package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ignite/whatsapp-warmup/internal/gateway"
)

// stub imitates the subset of the Evolution API the warm-up server uses.
// Every instance reports as connected. Sends fail at failureRate and, when
// a webhook URL is set, a fraction of accepted messages get a reply.
type stub struct {
	apiKey      string
	failureRate float64
	replyRate   float64
	webhookURL  string

	mu  sync.Mutex
	rng *rand.Rand
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		log.Fatalf("%s must be a number between 0 and 1, got %q", key, v)
	}
	return f
}

func (s *stub) roll(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *stub) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("apikey") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid apikey"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *stub) instanceState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")
	writeJSON(w, http.StatusOK, gateway.InstanceState{
		Instance:        name,
		Status:          gateway.StatusOpen,
		ConnectionState: gateway.ConnectedState,
	})
}

func (s *stub) send(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "instance")
		var body struct {
			Number string `json:"number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Number == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "number is required"})
			return
		}
		if s.roll(s.failureRate) {
			log.Printf("[stub] %s to %s on %s: simulated failure", kind, body.Number, name)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "simulated gateway failure"})
			return
		}

		res := gateway.SendResult{
			Key: gateway.MessageKey{
				RemoteJID: body.Number + "@s.whatsapp.net",
				FromMe:    true,
				ID:        uuid.New().String(),
			},
			Status: "PENDING",
		}
		log.Printf("[stub] %s to %s on %s: accepted %s", kind, body.Number, name, res.Key.ID)
		writeJSON(w, http.StatusCreated, res)

		if s.webhookURL != "" && s.roll(s.replyRate) {
			go s.reply(name, body.Number)
		}
	}
}

// reply posts an inbound message webhook after a short pause.
func (s *stub) reply(instance, number string) {
	time.Sleep(2 * time.Second)
	payload := fmt.Sprintf(`{"instance":%q,"message":{"key":{"remoteJid":%q,"fromMe":false,"id":%q},`+
		`"message":{"conversation":"ok, received!"},"messageTimestamp":%d,"messageType":"conversation"}}`,
		instance, number+"@s.whatsapp.net", uuid.New().String(), time.Now().Unix())
	resp, err := http.Post(s.webhookURL, "application/json", bytes.NewBufferString(payload))
	if err != nil {
		log.Printf("[stub] reply webhook failed: %v", err)
		return
	}
	resp.Body.Close()
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  WARNING: This is a STUB messaging gateway for local      ║")
	log.Println("║  testing ONLY. Nothing is delivered to WhatsApp.          ║")
	log.Println("║                                                           ║")
	log.Println("║  Point gateway.base_url of cmd/server at this process.    ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "8081"
	}
	s := &stub{
		apiKey:      os.Getenv("STUB_API_KEY"),
		failureRate: envFloat("STUB_FAILURE_RATE", 0),
		replyRate:   envFloat("STUB_REPLY_RATE", 0.8),
		webhookURL:  os.Getenv("STUB_WEBHOOK_URL"),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "stub-gateway"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/instance/{instance}", s.instanceState)
		r.Post("/message/sendText/{instance}", s.send("text"))
		r.Post("/message/sendMedia/{instance}", s.send("media"))
	})

	log.Printf("Stub gateway on :%s (failure rate %.2f, reply rate %.2f, webhook %q)",
		port, s.failureRate, s.replyRate, s.webhookURL)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Stub gateway error: %v", err)
	}
}
