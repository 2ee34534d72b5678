package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/internal/ledger-service/accounts"
	"github.com/radieske/wager-ledger/internal/ledger-service/engine"
	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
	"github.com/radieske/wager-ledger/internal/ledger-service/wagers"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// Ledger é o conjunto de operações do engine usado pela API.
type Ledger interface {
	CreateAccount(ctx context.Context, username string) (accounts.Account, error)
	Balance(ctx context.Context, username string) (accounts.Account, error)
	ListAccounts(ctx context.Context) ([]accounts.Account, error)
	PlaceWager(ctx context.Context, req engine.PlaceRequest) (wagers.Holding, error)
	SettleWager(ctx context.Context, username, matchID string) (wagers.Settlement, error)
	ListWagers(ctx context.Context, username string) ([]wagers.Holding, error)
	UpcomingMatches(ctx context.Context) ([]matches.Match, error)
}

type Server struct {
	log         *zap.Logger
	ledger      Ledger
	corsOrigins []string
	ws          http.HandlerFunc

	// OnRequest é chamado ao fim de cada requisição (métricas).
	OnRequest func(route string, status int)
}

func NewServer(log *zap.Logger, l Ledger, corsOrigins []string) *Server {
	return &Server{log: log, ledger: l, corsOrigins: corsOrigins}
}

// WithWebSocket registra o handler de /ws/matches.
func (s *Server) WithWebSocket(h http.HandlerFunc) *Server {
	s.ws = h
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(15 * time.Second))
		r.Get("/upcoming_matches", s.upcomingMatches)
		r.Post("/create_user", s.createUser)
		r.Get("/get_users", s.getUsers)
		r.Get("/get_user_currency", s.getUserCurrency)
		r.Post("/place_bet", s.placeBet)
		r.Post("/end_bet", s.endBet)
		r.Get("/get_bets", s.getBets)
		r.Get("/get_user_bets", s.getUserBets)
	})

	if s.ws != nil {
		r.Get("/ws/matches", s.ws)
	}
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
		if s.OnRequest != nil {
			s.OnRequest(route, ww.Status())
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor traduz o Kind do erro para o status HTTP.
func statusFor(kind ledgererr.Kind) int {
	switch kind {
	case ledgererr.KindInvalidInput:
		return http.StatusBadRequest
	case ledgererr.KindNotFound:
		return http.StatusNotFound
	case ledgererr.KindDuplicateUsername, ledgererr.KindDuplicateWager:
		return http.StatusConflict
	case ledgererr.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case ledgererr.KindTransientStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := ledgererr.KindOf(err)
	status := statusFor(kind)

	msg := ledgererr.Message(err)
	if status >= http.StatusInternalServerError {
		// não vaza detalhes do banco para o cliente
		msg = "temporary storage failure, try again"
	}
	writeJSON(w, status, errorBody(kind, msg))
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return ledgererr.Wrap(ledgererr.KindInvalidInput, err, "invalid json body")
	}
	return nil
}
