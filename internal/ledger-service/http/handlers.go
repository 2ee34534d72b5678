package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/radieske/wager-ledger/internal/ledger-service/dto"
	"github.com/radieske/wager-ledger/internal/ledger-service/engine"
	"github.com/radieske/wager-ledger/internal/ledger-service/wagers"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

func errorBody(kind ledgererr.Kind, msg string) dto.ErrorResponse {
	return dto.ErrorResponse{Error: string(kind), Message: msg}
}

func toBet(h wagers.Holding) dto.Bet {
	return dto.Bet{
		WagerID:  h.ID,
		Username: h.Username,
		MatchID:  h.MatchID,
		Amount:   h.Amount,
		Odds:     h.Odds,
		Team:     string(h.Side),
		PlacedAt: h.PlacedAt,
	}
}

func (s *Server) upcomingMatches(w http.ResponseWriter, r *http.Request) {
	ms, err := s.ledger.UpcomingMatches(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := dto.MatchesResponse{Matches: make([]dto.Match, 0, len(ms))}
	for _, m := range ms {
		out.Matches = append(out.Matches, dto.Match{
			MatchID: m.ID,
			EventID: m.EventID,
			Time:    m.ScheduledAt,
			Red:     m.Red,
			Blue:    m.Blue,
			Odds:    map[string]decimal.Decimal{"red": m.Odds.Red, "blue": m.Odds.Blue},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	acc, err := s.ledger.CreateAccount(r.Context(), req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.CreateUserResponse{
		Message:  "User created successfully",
		UserID:   acc.ID,
		Username: acc.Username,
		Currency: acc.Balance,
	})
}

func (s *Server) getUsers(w http.ResponseWriter, r *http.Request) {
	all, err := s.ledger.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := dto.UsersResponse{Users: make([]dto.User, 0, len(all))}
	for _, a := range all {
		out.Users = append(out.Users, dto.User{Username: a.Username, Currency: a.Balance})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUserCurrency(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.Balance(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CurrencyResponse{Username: acc.Username, Currency: acc.Balance})
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	held, err := s.ledger.PlaceWager(r.Context(), engine.PlaceRequest{
		Username: req.Username,
		MatchID:  req.MatchID,
		Side:     req.Team,
		Amount:   req.Amount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		Message: "Bet placed successfully",
		Bet:     toBet(held),
	})
}

func (s *Server) endBet(w http.ResponseWriter, r *http.Request) {
	var req dto.EndBetRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.ledger.SettleWager(r.Context(), req.Username, req.MatchID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.EndBetResponse{
		Message:  "Bet ended successfully",
		WagerID:  st.WagerID,
		Winnings: st.Winnings,
		Currency: st.BalanceAfter,
	})
}

func (s *Server) getBets(w http.ResponseWriter, r *http.Request) {
	s.listBets(w, r, "")
}

func (s *Server) getUserBets(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		s.writeError(w, ledgererr.New(ledgererr.KindInvalidInput, "username required"))
		return
	}
	s.listBets(w, r, username)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request, username string) {
	held, err := s.ledger.ListWagers(r.Context(), username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := dto.BetsResponse{Bets: make([]dto.Bet, 0, len(held))}
	for _, h := range held {
		out.Bets = append(out.Bets, toBet(h))
	}
	writeJSON(w, http.StatusOK, out)
}
