package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"impactledger/internal/app"
	jwttoken "impactledger/internal/jwt_token"
	"impactledger/internal/ledger"
	"impactledger/internal/platform/config"
	"impactledger/pkg/domain"
)

type RouterSuite struct {
	suite.Suite
	app    *app.App
	jwt    *jwttoken.JWTService
	server *httptest.Server
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	g := config.DefaultGenesis()
	g.Deployer = "0xdeployer"
	g.Roles = []config.RoleGrant{{Role: "VERIFIER", Members: []string{"0xverifier"}}}
	g.Allocations = []config.Allocation{{Holder: "0xalice", Amount: 1_000_000}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(app.MemoryStores(), ledger.NewMemoryTx(), app.Options{Genesis: g, Logger: logger})
	s.Require().NoError(err)
	s.Require().NoError(a.Bootstrap(context.Background()))
	s.app = a
	s.jwt = jwttoken.NewJWTService("test-signing-key", "impactledger")

	router := NewRouter(logger, jwttoken.NewJWTServiceAdapter(s.jwt), nil,
		NewNGOHandler(a.NGOs, a.Donations, a.Transfers, logger),
		NewMilestoneHandler(a.Milestones, logger),
		NewGovernanceHandler(a.Governor, a.Tokens, a.Timelock, logger),
		NewRegistryHandler(a.Registry, a.Roles, a.Fees, a.Events, logger),
	)
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)
}

func (s *RouterSuite) call(as domain.Address, method, path, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if as != "" {
		token, err := s.jwt.GenerateAccessToken(as, time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, out
}

func (s *RouterSuite) created(as domain.Address, path, body string) string {
	status, out := s.call(as, http.MethodPost, path, body)
	s.Require().Equal(http.StatusCreated, status, string(out))
	var resp idResponse
	s.Require().NoError(json.Unmarshal(out, &resp))
	return resp.ID
}

func (s *RouterSuite) TestHealthIsPublic() {
	status, _ := s.call("", http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, status)

	status, _ = s.call("", http.MethodGet, "/ngos", "")
	s.Equal(http.StatusUnauthorized, status)
}

func (s *RouterSuite) TestDonateAndRelease() {
	ngo := s.created("0xngo", "/ngos", `{"metadata_ref":"ipfs://ngo"}`)

	status, body := s.call("0xdonor", http.MethodPost, "/ngos/"+ngo+"/donations", `{"amount":1000000}`)
	s.Equal(http.StatusForbidden, status, "unverified")
	s.Contains(string(body), "forbidden")

	status, _ = s.call("0xngo", http.MethodPost, "/ngos/"+ngo+"/verify", "")
	s.Equal(http.StatusForbidden, status, "only a verifier verifies")
	status, _ = s.call("0xverifier", http.MethodPost, "/ngos/"+ngo+"/verify", "")
	s.Require().Equal(http.StatusNoContent, status)

	s.created("0xdonor", "/ngos/"+ngo+"/donations", `{"amount":1000000,"memo":"for the well"}`)

	deadline := time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339)
	milestone := s.created("0xngo", "/milestones",
		`{"ngo_id":"`+ngo+`","description":"Build well","target_amount":500000,"deadline":"`+deadline+`","approver":"0xapprover"}`)

	status, _ = s.call("0xngo", http.MethodPost, "/milestones/"+milestone+"/submit", "")
	s.Require().Equal(http.StatusNoContent, status)
	status, _ = s.call("0xdonor", http.MethodPost, "/milestones/"+milestone+"/release", "")
	s.Equal(http.StatusConflict, status)
	status, _ = s.call("0xapprover", http.MethodPost, "/milestones/"+milestone+"/approve", "")
	s.Require().Equal(http.StatusNoContent, status)
	status, _ = s.call("0xdonor", http.MethodPost, "/milestones/"+milestone+"/release", "")
	s.Require().Equal(http.StatusNoContent, status)

	status, body = s.call("0xdonor", http.MethodGet, "/ngos/"+ngo+"/escrow", "")
	s.Require().Equal(http.StatusOK, status)
	var escrow struct {
		Received  int64 `json:"total_received"`
		Fees      int64 `json:"total_fees_charged"`
		Released  int64 `json:"total_released"`
		Available int64 `json:"available_balance"`
	}
	s.Require().NoError(json.Unmarshal(body, &escrow))
	s.Equal(int64(1_000_000), escrow.Received)
	s.Equal(int64(25_000), escrow.Fees)
	s.Equal(int64(500_000), escrow.Released)
	s.Equal(int64(475_000), escrow.Available)

	status, body = s.call("0xdonor", http.MethodGet, "/events?subject="+ngo, "")
	s.Require().Equal(http.StatusOK, status)
	s.Contains(string(body), "donation_made")
}

func (s *RouterSuite) TestProposeAndVote() {
	id := s.created("0xalice", "/proposals",
		`{"description":"raise fee","actions":[{"kind":"SetFeeSchedule","fee_bps":300,"fee_recipient":"treasury"}]}`)

	status, _ := s.call("0xalice", http.MethodPost, "/proposals/"+id+"/votes", `{"support":1}`)
	s.Require().Equal(http.StatusNoContent, status)
	status, _ = s.call("0xalice", http.MethodPost, "/proposals/"+id+"/votes", `{"support":1}`)
	s.Equal(http.StatusConflict, status, "one vote per holder")
	status, _ = s.call("0xnobody", http.MethodPost, "/proposals/"+id+"/votes", `{"support":0}`)
	s.Equal(http.StatusForbidden, status, "no voting power")

	status, body := s.call("0xalice", http.MethodGet, "/proposals/"+id, "")
	s.Require().Equal(http.StatusOK, status)
	var view struct {
		State    string `json:"state"`
		VotesFor int64  `json:"votes_for"`
	}
	s.Require().NoError(json.Unmarshal(body, &view))
	s.Equal("active", view.State)
	s.Equal(int64(1_000_000), view.VotesFor)

	status, _ = s.call("0xalice", http.MethodPost, "/proposals/"+id+"/queue", "")
	s.Equal(http.StatusConflict, status, "voting still open")
}

func (s *RouterSuite) TestRegistryReads() {
	status, body := s.call("0xanyone", http.MethodGet, "/modules/DonationManager", "")
	s.Require().Equal(http.StatusOK, status)
	s.Contains(string(body), string(app.AddrDonationManager))

	status, body = s.call("0xanyone", http.MethodGet, "/roles/ADMIN/members", "")
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`["`+string(app.AddrTimelock)+`"]`, string(body))

	status, _ = s.call("0xdeployer", http.MethodPut, "/modules/DonationManager",
		`{"address":"0xrogue","interface":"impactledger.DonationManager","version":2}`)
	s.Equal(http.StatusForbidden, status, "ADMIN belongs to the timelock")

	status, body = s.call("0xanyone", http.MethodGet, "/fees", "")
	s.Require().Equal(http.StatusOK, status)
	s.Contains(string(body), `"fee_bps":250`)
}
