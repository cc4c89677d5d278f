package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"papernet/internal/company"
	"papernet/internal/events"
	"papernet/internal/identity"
	"papernet/internal/ledger"
	"papernet/internal/trading"
	id "papernet/pkg/domain"
)

// RouterSuite drives the full HTTP surface against real services over the
// in-memory ledger.
type RouterSuite struct {
	suite.Suite
	router    http.Handler
	publisher *events.Memory
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	store := ledger.NewMemory()
	s.publisher = events.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolver := identity.NewStatic()
	resolver.Register("magneto-token", id.Caller{
		ParticipantID: "issuer@MAGNETOCORP",
		Companies:     []id.Symbol{"MAGNETOCORP"},
	})
	resolver.Register("digibank-token", id.Caller{
		ParticipantID: "trader@DIGIBANK",
		Companies:     []id.Symbol{"DIGIBANK"},
	})

	s.router = NewRouter(Deps{
		Trading:   trading.NewEngine(store, s.publisher, logger),
		Companies: company.NewService(store, s.publisher, logger, ledger.DefaultMaxRetries),
		Resolver:  resolver,
		Logger:    logger,
	})
}

// do performs a request with the given bearer token and decodes the JSON
// response into out when out is non-nil.
func (s *RouterSuite) do(method, path, token, body string, out any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func (s *RouterSuite) seed() {
	w := s.do(http.MethodPost, "/companies", "magneto-token",
		`{"symbol":"MAGNETOCORP","name":"MagnetoCorp","issuing_account":"MAG-ISSUE","currency":"USD"}`, nil)
	s.Require().Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/companies", "digibank-token",
		`{"symbol":"DIGIBANK","name":"DigiBank","issuing_account":"DIG-1","currency":"USD","opening_balance":"5000000"}`, nil)
	s.Require().Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/markets", "magneto-token",
		`{"id":"M1","name":"USD Money Market","currency":"USD","max_maturity_days":270}`, nil)
	s.Require().Equal(http.StatusCreated, w.Code)
}

// TestAuthentication verifies the auth boundary around the API.
func (s *RouterSuite) TestAuthentication() {
	s.Run("requests without a credential are rejected", func() {
		w := s.do(http.MethodPost, "/papers", "", `{}`, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("unknown credentials are rejected", func() {
		w := s.do(http.MethodGet, "/papers/CP001", "bogus", "", nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("health and metrics stay open", func() {
		w := s.do(http.MethodGet, "/healthz", "", "", nil)
		s.Equal(http.StatusOK, w.Code)

		w = s.do(http.MethodGet, "/metrics", "", "", nil)
		s.Equal(http.StatusOK, w.Code)
	})
}

// TestLifecycleOverHTTP walks issue, list, and purchase through the API.
func (s *RouterSuite) TestLifecycleOverHTTP() {
	s.seed()

	var issued struct {
		Papers []struct {
			CUSIP string `json:"cusip"`
			State string `json:"state"`
		} `json:"papers"`
	}
	w := s.do(http.MethodPost, "/papers", "magneto-token",
		`{"cusip":"CP001","ticker":"MAG 0 09/26","currency":"USD","par":"1000000","maturity_days":148,"issuer":"MAGNETOCORP"}`,
		&issued)
	s.Require().Equal(http.StatusCreated, w.Code)
	s.Require().Len(issued.Papers, 1)
	s.Equal("ISSUED", issued.Papers[0].State)

	var listed struct {
		Accepted []struct {
			ID string `json:"id"`
		} `json:"accepted"`
	}
	w = s.do(http.MethodPost, "/markets/M1/listings", "magneto-token",
		`{"cusips":["CP001"],"discount":"0.05"}`, &listed)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().Len(listed.Accepted, 1)

	var board struct {
		Listings []struct {
			CUSIP string `json:"cusip"`
		} `json:"listings"`
	}
	w = s.do(http.MethodGet, "/markets/M1/listings", "digibank-token", "", &board)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().Len(board.Listings, 1)
	s.Equal("CP001", board.Listings[0].CUSIP)

	var bought struct {
		Settlement string `json:"settlement"`
		Paper      struct {
			Owner string `json:"owner"`
			State string `json:"state"`
		} `json:"paper"`
	}
	w = s.do(http.MethodPost, "/markets/M1/purchases", "digibank-token",
		`{"listing_id":"`+listed.Accepted[0].ID+`","buyer":"DIGIBANK","buyer_account":"DIG-1"}`, &bought)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("950000", bought.Settlement)
	s.Equal("DIGIBANK", bought.Paper.Owner)
	s.Equal("OWNED", bought.Paper.State)

	var fetched struct {
		Owner  string `json:"owner"`
		Issuer string `json:"issuer"`
	}
	w = s.do(http.MethodGet, "/papers/CP001", "magneto-token", "", &fetched)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("DIGIBANK", fetched.Owner)
	s.Equal("MAGNETOCORP", fetched.Issuer)

	// Redemption before maturity is a conflict.
	w = s.do(http.MethodPost, "/papers/CP001/redeem", "digibank-token", "", nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Contains(w.Body.String(), "conflict")
}

// TestErrorMapping verifies the JSON error envelope and status codes.
func (s *RouterSuite) TestErrorMapping() {
	s.seed()

	s.Run("unknown paper maps to 404", func() {
		w := s.do(http.MethodGet, "/papers/CP404", "magneto-token", "", nil)
		s.Equal(http.StatusNotFound, w.Code)
		s.Contains(w.Body.String(), "not_found")
	})

	s.Run("malformed body maps to 400", func() {
		w := s.do(http.MethodPost, "/papers", "magneto-token", `{"cusip":`, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("invalid terms map to 400", func() {
		w := s.do(http.MethodPost, "/papers", "magneto-token",
			`{"cusip":"CP002","currency":"USD","par":"-1","maturity_days":30,"issuer":"MAGNETOCORP"}`, nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Contains(w.Body.String(), "validation")
	})

	s.Run("acting for another company maps to 403", func() {
		w := s.do(http.MethodPost, "/papers", "digibank-token",
			`{"cusip":"CP003","currency":"USD","par":"1000000","maturity_days":30,"issuer":"MAGNETOCORP"}`, nil)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("an underfunded purchase maps to 422", func() {
		var issued map[string]any
		w := s.do(http.MethodPost, "/papers", "magneto-token",
			`{"cusip":"CP004","currency":"USD","par":"99000000","maturity_days":30,"issuer":"MAGNETOCORP"}`, &issued)
		s.Require().Equal(http.StatusCreated, w.Code)

		var listed struct {
			Accepted []struct {
				ID string `json:"id"`
			} `json:"accepted"`
		}
		w = s.do(http.MethodPost, "/markets/M1/listings", "magneto-token",
			`{"cusips":["CP004"],"discount":"0.05"}`, &listed)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Require().Len(listed.Accepted, 1)

		w = s.do(http.MethodPost, "/markets/M1/purchases", "digibank-token",
			`{"listing_id":"`+listed.Accepted[0].ID+`","buyer":"DIGIBANK","buyer_account":"DIG-1"}`, nil)
		s.Equal(http.StatusUnprocessableEntity, w.Code)
		s.Contains(w.Body.String(), "insufficient_funds")
	})
}
